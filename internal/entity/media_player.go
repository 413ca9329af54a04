package entity

import (
	"reflect"
	"sync"

	"github.com/hwaldner/avrbridge/internal/avr"
)

// TypeMediaPlayer prefixes every media-player entity ID.
const TypeMediaPlayer = "media_player"

// MediaPlayerID returns the entity ID for a device.
func MediaPlayerID(deviceID string) string {
	return TypeMediaPlayer + "." + deviceID
}

// MediaPlayer is the media-player entity for one receiver. It holds the
// last attribute set pushed to consumers and reduces incoming updates to
// changed keys only.
type MediaPlayer struct {
	id       string
	deviceID string
	name     string

	mu    sync.RWMutex
	attrs map[string]any
}

// NewMediaPlayer creates an entity seeded with the device's current
// attribute snapshot.
func NewMediaPlayer(deviceID, name string, attrs map[string]any) *MediaPlayer {
	seeded := make(map[string]any, len(attrs))
	for k, v := range attrs {
		seeded[k] = v
	}
	return &MediaPlayer{
		id:       MediaPlayerID(deviceID),
		deviceID: deviceID,
		name:     name,
		attrs:    seeded,
	}
}

// ID returns the entity identifier.
func (m *MediaPlayer) ID() string { return m.id }

// DeviceID returns the backing device identifier.
func (m *MediaPlayer) DeviceID() string { return m.deviceID }

// Name returns the display name.
func (m *MediaPlayer) Name() string { return m.name }

// Attributes returns a copy of the current attribute set.
func (m *MediaPlayer) Attributes() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	attrs := make(map[string]any, len(m.attrs))
	for k, v := range m.attrs {
		attrs[k] = v
	}
	return attrs
}

// Apply filters an attribute update down to the keys whose values differ
// from the cached set, merges those into the cache, and returns them.
// An empty result means nothing changed and nothing should be published.
//
// A state change to off also blanks the media metadata and source, so
// consumers don't keep showing the last played track.
func (m *MediaPlayer) Apply(update map[string]any) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	diff := make(map[string]any)

	if state, ok := update[avr.AttrState]; ok {
		m.diffKey(avr.AttrState, state, diff)
	}

	for _, key := range []string{
		avr.AttrMediaArtist,
		avr.AttrMediaAlbum,
		avr.AttrMediaImageURL,
		avr.AttrMediaTitle,
		avr.AttrMuted,
		avr.AttrSource,
		avr.AttrSourceList,
		avr.AttrSoundModeList,
		avr.AttrVolume,
	} {
		if value, ok := update[key]; ok {
			m.diffKey(key, value, diff)
		}
	}

	if mode, ok := update[avr.AttrSoundMode]; ok {
		m.diffKey(avr.AttrSoundMode, mode, diff)
	}

	if diff[avr.AttrState] == avr.StateOff.String() {
		diff[avr.AttrMediaImageURL] = ""
		diff[avr.AttrMediaAlbum] = ""
		diff[avr.AttrMediaArtist] = ""
		diff[avr.AttrMediaTitle] = ""
		diff[avr.AttrSource] = ""
	}

	for k, v := range diff {
		m.attrs[k] = v
	}
	return diff
}

// diffKey adds key to diff when value is non-nil and differs from the
// cached value. Called with m.mu held.
func (m *MediaPlayer) diffKey(key string, value any, diff map[string]any) {
	if value == nil {
		return
	}
	if cached, ok := m.attrs[key]; ok && reflect.DeepEqual(cached, value) {
		return
	}
	diff[key] = value
}
