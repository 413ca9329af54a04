package avr

import (
	"math"
	"strings"
)

// Available reports whether the control session is usable.
func (s *Session) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// State returns the derived media-player state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UniqueID returns the device identity derived at connect time (serial
// number, falling back to MAC addresses, falling back to the config id).
func (s *Session) UniqueID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.uniqueID != "" {
		return s.uniqueID
	}
	return s.cfg.ID
}

// VolumeLevel returns the volume as a 0-100 percentage of the device's
// raw range.
func (s *Session) VolumeLevel() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volumeLevelLocked()
}

func (s *Session) volumeLevelLocked() float64 {
	span := float64(s.volume.MaxVolume - s.volume.MinVolume)
	if span == 0 {
		return 0
	}
	return 100 * math.Abs(float64(s.volume.Volume-s.volume.MinVolume)/span)
}

// Muted reports the mute state of the active output.
func (s *Session) Muted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume.Muted
}

// Source returns the title of the active input, or "" when unknown.
func (s *Session) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sourceTitleLocked()
}

func (s *Session) sourceTitleLocked() string {
	if s.activeSource < 0 || s.activeSource >= len(s.sources) {
		return ""
	}
	return s.sources[s.activeSource].Title
}

// SourceList returns the input titles in the device's advertised order.
func (s *Session) SourceList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sourceListLocked()
}

func (s *Session) sourceListLocked() []string {
	titles := make([]string, len(s.sources))
	for i, in := range s.sources {
		titles[i] = in.Title
	}
	return titles
}

// SoundMode returns the title of the active sound field.
func (s *Session) SoundMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.soundModeLocked()
}

func (s *Session) soundModeLocked() string {
	if s.soundSetting == nil {
		return ""
	}
	for _, c := range s.soundSetting.Candidates {
		if c.Value == s.soundSetting.CurrentValue {
			return c.Title
		}
	}
	return s.soundSetting.CurrentValue
}

// SoundModeList returns the selectable sound-field titles.
func (s *Session) SoundModeList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.soundModeListLocked()
}

func (s *Session) soundModeListLocked() []string {
	if s.soundSetting == nil {
		return nil
	}
	titles := make([]string, len(s.soundSetting.Candidates))
	for i, c := range s.soundSetting.Candidates {
		titles[i] = c.Title
	}
	return titles
}

// mediaInfoLocked returns the first play-info slot that is not stopped.
func (s *Session) mediaInfoLocked() *PlayInfo {
	for i := range s.playing {
		if !strings.EqualFold(s.playing[i].State, "STOPPED") {
			return &s.playing[i]
		}
	}
	return nil
}

// Attributes returns a full snapshot of every published attribute.
func (s *Session) Attributes() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attrs := map[string]any{
		AttrState:         s.state.String(),
		AttrVolume:        s.volumeLevelLocked(),
		AttrMuted:         s.volume.Muted,
		AttrSource:        s.sourceTitleLocked(),
		AttrSourceList:    s.sourceListLocked(),
		AttrSoundMode:     s.soundModeLocked(),
		AttrSoundModeList: s.soundModeListLocked(),
		AttrMediaTitle:    "",
		AttrMediaArtist:   "",
		AttrMediaAlbum:    "",
		AttrMediaImageURL: "",
	}
	if m := s.mediaInfoLocked(); m != nil {
		attrs[AttrMediaTitle] = m.Title
		attrs[AttrMediaArtist] = m.Artist
		attrs[AttrMediaAlbum] = m.Album
		attrs[AttrMediaImageURL] = m.ThumbnailURL
	}
	return attrs
}
