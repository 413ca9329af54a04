package avr

import "context"

// activateNotifications (re)starts the websocket notification listener.
// Concurrent activations collapse into one.
func (s *Session) activateNotifications() {
	if !s.wsMu.TryLock() {
		return
	}
	defer s.wsMu.Unlock()

	s.tr.RegisterNotificationHandlers(NotificationHandlers{
		VolumeChanged:  s.handleVolumeChanged,
		ContentChanged: s.handleContentChanged,
		PowerChanged:   s.handlePowerChanged,
		ConnectionLost: s.handleConnectionLost,
	})

	s.taskMu.Lock()
	if s.listenerCancel != nil {
		s.listenerCancel()
	}
	lctx, cancel := context.WithCancel(s.ctx)
	s.listenerCancel = cancel
	s.taskMu.Unlock()

	go func() {
		if err := s.tr.ListenNotifications(lctx); err != nil && lctx.Err() == nil {
			s.logger.Warn("notification listener exited",
				"device", s.cfg.ID, "error", err)
		}
	}()
}

// emitUpdate emits an UPDATE event carrying changed, unless nothing
// changed. Pushing the same value twice therefore produces one event.
func (s *Session) emitUpdate(changed map[string]any) {
	if len(changed) == 0 {
		return
	}
	s.emit(Event{Type: EventUpdate, DeviceID: s.cfg.ID, Attributes: changed})
}

func (s *Session) handleVolumeChanged(v VolumeChange) {
	changed := map[string]any{}
	s.mu.Lock()
	if v.Output == "" || v.Output == s.volume.Output {
		if s.volume.Volume != v.Volume {
			s.volume.Volume = v.Volume
			changed[AttrVolume] = s.volumeLevelLocked()
		}
		if s.volume.Muted != v.Muted {
			s.volume.Muted = v.Muted
			changed[AttrMuted] = v.Muted
		}
	}
	s.mu.Unlock()
	s.emitUpdate(changed)
}

func (s *Session) handleContentChanged(c ContentChange) {
	changed := map[string]any{}
	s.mu.Lock()
	if st, ok := lookupPlaybackState(c.State); ok && s.playback != st {
		s.playback = st
	}
	if s.updateStateLocked() {
		changed[AttrState] = s.state.String()
	}
	s.mergePlayInfoLocked(c)
	if c.URI != "" {
		if i, ok := s.sourceIdx[c.URI]; ok && s.activeSource != i {
			s.activeSource = i
			changed[AttrSource] = s.sources[i].Title
		}
	}
	s.mu.Unlock()
	s.emitUpdate(changed)
}

// mergePlayInfoLocked folds a content notification into the play-info
// cache. A notification addresses one slot; the remaining slots keep
// the metadata fetched at connect time.
func (s *Session) mergePlayInfoLocked(c ContentChange) {
	info := PlayInfo{
		State:        c.State,
		URI:          c.URI,
		Title:        c.Title,
		Artist:       c.Artist,
		Album:        c.Album,
		ThumbnailURL: c.ThumbnailURL,
	}
	for i := range s.playing {
		if s.playing[i].URI == c.URI {
			s.playing[i] = info
			return
		}
	}
	if c.URI == "" && c.Title == "" && c.Artist == "" && c.Album == "" && c.ThumbnailURL == "" {
		// Bare state change, nothing slot-worthy to store.
		return
	}
	s.playing = append(s.playing, info)
}

func (s *Session) handlePowerChanged(p PowerChange) {
	changed := map[string]any{}
	s.mu.Lock()
	turnedOff := s.powered && !p.Powered
	turnedOn := !s.powered && p.Powered
	s.powered = p.Powered
	if s.updateStateLocked() {
		changed[AttrState] = s.state.String()
	}
	s.mu.Unlock()
	s.emitUpdate(changed)

	switch {
	case turnedOff:
		s.startWatchdog()
	case turnedOn:
		s.stopWatchdog()
	}
}

// handleConnectionLost marks the session unavailable and arms the
// reconnect loop. Repeated drops while a loop is already running are
// absorbed by the loop's run guard.
func (s *Session) handleConnectionLost(err error) {
	s.logger.Warn("notification channel lost", "device", s.cfg.ID, "error", err)

	s.mu.Lock()
	was := s.available
	s.available = false
	s.state = StateUnknown
	s.mu.Unlock()

	if was {
		s.emit(Event{Type: EventDisconnected, DeviceID: s.cfg.ID})
	}
	s.emit(Event{Type: EventUpdate, DeviceID: s.cfg.ID})
	s.ensureReconnectLoop()
}
