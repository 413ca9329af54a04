package avr

import (
	"context"
	"fmt"
)

type commandFunc func(context.Context) error

// execute wraps a device command with the availability check, the retry
// path, and panic containment. Callers only ever see a Status.
//
// An available session issues the command directly. When the session is
// unavailable, or the direct attempt fails at the transport level, the
// reconnect loop is armed and the command is either buffered for replay
// (bufferable commands report OK immediately) or retried once after a
// bounded wait for the reconnect to finish.
func (s *Session) execute(ctx context.Context, name string, bufferable bool, fn commandFunc) (st Status) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("command panicked", "device", s.cfg.ID, "command", name, "panic", r)
			st = StatusBadRequest
		}
	}()

	if s.Available() {
		err := s.bounded(ctx, fn)
		if err == nil {
			return StatusOK
		}
		s.logCommandFailure(name, err)
		if !IsTransportError(err) {
			return StatusBadRequest
		}
	}

	s.ensureReconnectLoop()

	if bufferable {
		s.logger.Debug("buffering command until the device is back",
			"device", s.cfg.ID, "command", name)
		s.buffer.add(name, fn)
		return StatusOK
	}

	if !s.waitForReconnect(s.commandTimeout) {
		s.logCommandFailure(name, errReconnectTimeout)
		return StatusTimeout
	}
	if err := s.bounded(ctx, fn); err != nil {
		s.logCommandFailure(name, err)
		if IsTransportError(err) {
			return StatusServiceUnavailable
		}
		return StatusBadRequest
	}
	return StatusOK
}

// logCommandFailure derates to debug while the device is known to be off:
// an unreachable powered-down receiver is expected, not an error.
func (s *Session) logCommandFailure(name string, err error) {
	if s.State() == StateOff {
		s.logger.Debug("command failed", "device", s.cfg.ID, "command", name, "error", err)
		return
	}
	s.logger.Error("command failed", "device", s.cfg.ID, "command", name, "error", err)
}

// PowerOn turns the device on. Issued while unreachable it is buffered
// and replayed after reconnect.
func (s *Session) PowerOn(ctx context.Context) Status {
	return s.execute(ctx, "power_on", true, func(c context.Context) error {
		return s.tr.SetPower(c, true)
	})
}

// PowerOff puts the device into standby.
func (s *Session) PowerOff(ctx context.Context) Status {
	return s.execute(ctx, "power_off", true, func(c context.Context) error {
		return s.tr.SetPower(c, false)
	})
}

// SetVolume sets the volume as a 0-100 percentage of the device's raw
// range. The raw value is truncated, not rounded.
func (s *Session) SetVolume(ctx context.Context, level float64) Status {
	if level < 0 || level > 100 {
		return StatusBadRequest
	}
	return s.execute(ctx, "volume", false, func(c context.Context) error {
		output, raw := s.rawVolume(level)
		if err := s.tr.SetVolume(c, output, raw); err != nil {
			return err
		}
		s.mu.Lock()
		s.volume.Volume = raw
		s.mu.Unlock()
		s.emitUpdate(map[string]any{AttrVolume: level})
		return nil
	})
}

func (s *Session) rawVolume(level float64) (output string, raw int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	span := float64(s.volume.MaxVolume - s.volume.MinVolume)
	return s.volume.Output, int(level*span/100 + float64(s.volume.MinVolume))
}

// VolumeUp raises the volume by the configured step.
func (s *Session) VolumeUp(ctx context.Context) Status {
	return s.stepVolume(ctx, "volume_up", s.cfg.VolumeStep)
}

// VolumeDown lowers the volume by the configured step.
func (s *Session) VolumeDown(ctx context.Context) Status {
	return s.stepVolume(ctx, "volume_down", -s.cfg.VolumeStep)
}

func (s *Session) stepVolume(ctx context.Context, name string, step float64) Status {
	return s.execute(ctx, name, false, func(c context.Context) error {
		s.mu.RLock()
		v := s.volume
		s.mu.RUnlock()
		span := float64(v.MaxVolume - v.MinVolume)
		raw := int(float64(v.Volume) + step*span/100)
		if raw > v.MaxVolume {
			raw = v.MaxVolume
		}
		if raw < v.MinVolume {
			raw = v.MinVolume
		}
		if err := s.tr.SetVolume(c, v.Output, raw); err != nil {
			return err
		}
		s.mu.Lock()
		s.volume.Volume = raw
		level := s.volumeLevelLocked()
		s.mu.Unlock()
		s.emitUpdate(map[string]any{AttrVolume: level})
		return nil
	})
}

// SetMute mutes or unmutes the active output.
func (s *Session) SetMute(ctx context.Context, muted bool) Status {
	return s.execute(ctx, "mute", false, func(c context.Context) error {
		s.mu.RLock()
		output := s.volume.Output
		s.mu.RUnlock()
		if err := s.tr.SetMute(c, output, muted); err != nil {
			return err
		}
		s.mu.Lock()
		s.volume.Muted = muted
		s.mu.Unlock()
		s.emitUpdate(map[string]any{AttrMuted: muted})
		return nil
	})
}

// ToggleMute flips the mute state.
func (s *Session) ToggleMute(ctx context.Context) Status {
	return s.SetMute(ctx, !s.Muted())
}

// SelectSource powers the device on and switches to the input whose title
// matches. An unknown title is a client error and no input switch is
// issued.
func (s *Session) SelectSource(ctx context.Context, title string) Status {
	return s.execute(ctx, "select_source", true, func(c context.Context) error {
		if err := s.tr.SetPower(c, true); err != nil {
			return err
		}
		uri, ok := s.sourceURIByTitle(title)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSource, title)
		}
		return s.tr.SelectInput(c, uri)
	})
}

func (s *Session) sourceURIByTitle(title string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, in := range s.sources {
		if in.Title == title {
			return in.URI, true
		}
	}
	return "", false
}

// SelectSoundMode switches the sound field to the candidate whose title
// matches. A title the device never offered is silently ignored, matching
// the device's own UI behaviour.
func (s *Session) SelectSoundMode(ctx context.Context, mode string) Status {
	return s.execute(ctx, "select_sound_mode", true, func(c context.Context) error {
		value, ok := s.soundModeValue(mode)
		if !ok {
			return nil
		}
		if err := s.tr.SetSoundSetting(c, soundFieldTarget, value); err != nil {
			return err
		}
		s.mu.Lock()
		if s.soundSetting != nil {
			s.soundSetting.CurrentValue = value
		}
		s.mu.Unlock()
		s.emitUpdate(map[string]any{AttrSoundMode: mode})
		return nil
	})
}

func (s *Session) soundModeValue(title string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.soundSetting == nil {
		return "", false
	}
	for _, c := range s.soundSetting.Candidates {
		if c.Title == title {
			return c.Value, true
		}
	}
	return "", false
}

// PlayPause toggles playback on the active content.
func (s *Session) PlayPause(ctx context.Context) Status {
	return s.playbackCommand(ctx, "play_pause", "pausePlayingContent")
}

// StopPlayback stops the active content.
func (s *Session) StopPlayback(ctx context.Context) Status {
	return s.playbackCommand(ctx, "stop", "stopPlayingContent")
}

// Next skips to the next track.
func (s *Session) Next(ctx context.Context) Status {
	return s.playbackCommand(ctx, "next", "setPlayNextContent")
}

// Previous skips to the previous track.
func (s *Session) Previous(ctx context.Context) Status {
	return s.playbackCommand(ctx, "previous", "setPlayPreviousContent")
}

func (s *Session) playbackCommand(ctx context.Context, name, method string) Status {
	return s.execute(ctx, name, false, func(c context.Context) error {
		return s.tr.Raw(c, "avContent", method, map[string]any{})
	})
}

// SetRawSetting writes a named device setting, e.g. HDMI output routing.
func (s *Session) SetRawSetting(ctx context.Context, target, value string) Status {
	if target == "" || value == "" {
		return StatusBadRequest
	}
	return s.execute(ctx, "setting", true, func(c context.Context) error {
		return s.tr.SetSoundSetting(c, target, value)
	})
}
