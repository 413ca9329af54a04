package avr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DeviceConfig is the static configuration of one receiver.
type DeviceConfig struct {
	ID      string
	Name    string
	Address string

	// AlwaysActive disables the power-off watchdog: the control session is
	// kept open even while the device is in standby.
	AlwaysActive bool

	// VolumeStep is the VolumeUp/VolumeDown increment as a percentage of
	// the device's volume range. Zero means the default of 2.
	VolumeStep float64

	MACWired    string
	MACWireless string
}

const (
	defaultVolumeStep           = 2.0
	defaultCommandTimeout       = 5 * time.Second
	defaultProbeTimeout         = 2 * time.Second
	defaultReconnectDelay       = 2 * time.Second
	defaultMaxReconnectFailures = 10
	defaultWatchdogInterval     = 10 * time.Second
	defaultWatchdogChecks       = 10
	defaultBufferTTL            = 30 * time.Second
)

// Session drives one receiver: connection lifecycle, command dispatch,
// notification handling, and the power-off watchdog.
type Session struct {
	cfg    DeviceConfig
	tr     Transport
	logger Logger
	events emitter
	buffer *commandBuffer

	// ctx is the session's own lifetime; Close cancels it and with it
	// every background task.
	ctx    context.Context
	cancel context.CancelFunc

	// connectMu serialises connects: a TryLock miss means another connect
	// is in flight and the call becomes a no-op.
	connectMu  sync.Mutex
	connecting atomic.Bool

	// wsMu collapses concurrent notification-listener activations.
	wsMu sync.Mutex

	reconnecting    atomic.Bool
	watchdogRunning atomic.Bool

	taskMu          sync.Mutex
	reconnectCancel context.CancelFunc
	reconnectDone   chan struct{}
	watchdogCancel  context.CancelFunc
	listenerCancel  context.CancelFunc

	mu           sync.RWMutex
	available    bool
	uniqueID     string
	ifaceInfo    *InterfaceInfo
	sysInfo      *SystemInfo
	volume       VolumeControl
	hasVolume    bool
	powered      bool
	playback     State
	state        State
	soundSetting *SoundSetting
	playing      []PlayInfo
	sources      []Input
	sourceIdx    map[string]int
	activeSource int

	commandTimeout       time.Duration
	probeTimeout         time.Duration
	reconnectDelay       time.Duration
	maxReconnectFailures int
	watchdogInterval     time.Duration
	watchdogChecks       int
}

// NewSession creates a session for cfg over tr. The session starts idle;
// call Connect to bring it up.
func NewSession(cfg DeviceConfig, tr Transport) *Session {
	if cfg.VolumeStep <= 0 {
		cfg.VolumeStep = defaultVolumeStep
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:    cfg,
		tr:     tr,
		logger: noopLogger{},
		buffer: newCommandBuffer(defaultBufferTTL),
		ctx:    ctx,
		cancel: cancel,

		playback:     StateUnknown,
		state:        StateUnknown,
		activeSource: -1,

		commandTimeout:       defaultCommandTimeout,
		probeTimeout:         defaultProbeTimeout,
		reconnectDelay:       defaultReconnectDelay,
		maxReconnectFailures: defaultMaxReconnectFailures,
		watchdogInterval:     defaultWatchdogInterval,
		watchdogChecks:       defaultWatchdogChecks,
	}
}

// SetLogger installs a logger. Nil is ignored.
func (s *Session) SetLogger(l Logger) {
	if l != nil {
		s.logger = l
	}
}

// Subscribe registers h for session events.
func (s *Session) Subscribe(h EventHandler) { s.events.subscribe(h) }

func (s *Session) ID() string           { return s.cfg.ID }
func (s *Session) Name() string         { return s.cfg.Name }
func (s *Session) Address() string      { return s.cfg.Address }
func (s *Session) Config() DeviceConfig { return s.cfg }

func (s *Session) emit(ev Event) { s.events.emit(ev) }

// Connect brings the session up: liveness probe, device identity, sound
// settings, volume range, power status, input list and play info, in that
// order. A call while another connect is in flight is a no-op. On success
// the session becomes available, emits CONNECTED and a full-refresh
// UPDATE, and starts the notification listener. A transport failure
// leaves the session unavailable and arms the reconnect loop.
func (s *Session) Connect(ctx context.Context) error {
	if !s.connectMu.TryLock() {
		return nil
	}
	defer s.connectMu.Unlock()
	s.connecting.Store(true)
	defer s.connecting.Store(false)

	s.emit(Event{Type: EventConnecting, DeviceID: s.cfg.ID})

	if err := s.connectOnce(ctx); err != nil {
		s.setUnavailable()
		if errors.Is(err, ErrNoVolumeControl) {
			s.logger.Error("connect aborted", "device", s.cfg.ID, "error", err)
			return err
		}
		s.logger.Warn("connect failed", "device", s.cfg.ID, "error", err)
		s.ensureReconnectLoop()
		return err
	}

	s.mu.Lock()
	s.available = true
	s.updateStateLocked()
	s.mu.Unlock()

	s.logger.Info("device connected", "device", s.cfg.ID, "address", s.cfg.Address)
	s.emit(Event{Type: EventConnected, DeviceID: s.cfg.ID})
	s.emit(Event{Type: EventUpdate, DeviceID: s.cfg.ID})
	s.activateNotifications()
	return nil
}

func (s *Session) connectOnce(ctx context.Context) error {
	if err := s.probe(ctx); err != nil {
		return err
	}

	// Interface and system info never change across reconnects; fetch once.
	s.mu.RLock()
	needIface := s.ifaceInfo == nil
	needSys := s.sysInfo == nil
	s.mu.RUnlock()

	if needIface {
		var info *InterfaceInfo
		if err := s.bounded(ctx, func(c context.Context) error {
			var err error
			info, err = s.tr.InterfaceInfo(c)
			return err
		}); err != nil {
			return err
		}
		s.mu.Lock()
		s.ifaceInfo = info
		s.mu.Unlock()
	}

	if needSys {
		var info *SystemInfo
		if err := s.bounded(ctx, func(c context.Context) error {
			var err error
			info, err = s.tr.SystemInfo(c)
			return err
		}); err != nil {
			return err
		}
		s.mu.Lock()
		s.sysInfo = info
		s.uniqueID = s.deriveUniqueID(info)
		s.mu.Unlock()
	}

	var sound *SoundSetting
	if err := s.bounded(ctx, func(c context.Context) error {
		var err error
		sound, err = s.tr.SoundSetting(c, soundFieldTarget)
		return err
	}); err != nil {
		return err
	}

	var controls []VolumeControl
	if err := s.bounded(ctx, func(c context.Context) error {
		var err error
		controls, err = s.tr.VolumeControls(c)
		return err
	}); err != nil {
		return err
	}
	if len(controls) == 0 {
		return ErrNoVolumeControl
	}
	if len(controls) > 1 {
		s.logger.Debug("multiple volume controls, using the first",
			"device", s.cfg.ID, "count", len(controls))
	}

	var powered bool
	if err := s.bounded(ctx, func(c context.Context) error {
		var err error
		powered, err = s.tr.PowerStatus(c)
		return err
	}); err != nil {
		return err
	}

	var inputs []Input
	if err := s.bounded(ctx, func(c context.Context) error {
		var err error
		inputs, err = s.tr.Inputs(c)
		return err
	}); err != nil {
		return err
	}

	var playing []PlayInfo
	if err := s.bounded(ctx, func(c context.Context) error {
		var err error
		playing, err = s.tr.PlayInfo(c)
		return err
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.soundSetting = sound
	s.volume = controls[0]
	s.hasVolume = true
	s.powered = powered
	s.setSourcesLocked(inputs)
	s.playing = playing
	s.playback = playbackStateOf(playing)
	s.mu.Unlock()
	return nil
}

// deriveUniqueID picks a stable device identity: serial number first, then
// the wired MAC, then the wireless MAC, then the configured id.
func (s *Session) deriveUniqueID(info *SystemInfo) string {
	switch {
	case info != nil && info.SerialNumber != "":
		return info.SerialNumber
	case info != nil && info.MACAddr != "":
		return info.MACAddr
	case info != nil && info.WirelessMACAddr != "":
		return info.WirelessMACAddr
	case s.cfg.MACWired != "":
		return s.cfg.MACWired
	case s.cfg.MACWireless != "":
		return s.cfg.MACWireless
	default:
		return s.cfg.ID
	}
}

func (s *Session) setSourcesLocked(inputs []Input) {
	s.sources = inputs
	s.sourceIdx = make(map[string]int, len(inputs))
	s.activeSource = -1
	for i, in := range inputs {
		s.sourceIdx[in.URI] = i
		if in.Active {
			s.activeSource = i
		}
	}
}

func playbackStateOf(playing []PlayInfo) State {
	for _, p := range playing {
		if st, ok := lookupPlaybackState(p.State); ok {
			return st
		}
	}
	return StateUnknown
}

// updateStateLocked recomputes the derived state and reports whether it
// changed. An unpowered device is OFF regardless of stale playback info;
// otherwise a known playback state wins over plain ON.
func (s *Session) updateStateLocked() bool {
	prev := s.state
	switch {
	case !s.powered:
		s.state = StateOff
	case s.playback != StateUnknown:
		s.state = s.playback
	default:
		s.state = StateOn
	}
	return s.state != prev
}

func (s *Session) setUnavailable() {
	s.mu.Lock()
	was := s.available
	s.available = false
	s.mu.Unlock()
	if was {
		s.emit(Event{Type: EventDisconnected, DeviceID: s.cfg.ID})
	}
}

func (s *Session) probe(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	return s.tr.ProbeLiveness(pctx)
}

// bounded runs fn under the per-call command timeout.
func (s *Session) bounded(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()
	return fn(cctx)
}

// ensureReconnectLoop starts the background reconnect loop unless one is
// already running.
func (s *Session) ensureReconnectLoop() {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.taskMu.Lock()
	s.reconnectCancel = cancel
	s.reconnectDone = done
	s.taskMu.Unlock()
	go s.runReconnectLoop(ctx, done)
}

func (s *Session) runReconnectLoop(ctx context.Context, done chan struct{}) {
	defer func() {
		s.reconnecting.Store(false)
		close(done)
	}()

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if s.tryReconnect(ctx) {
			s.drainBuffer(ctx)
			return
		}
		failures++
		if failures >= s.maxReconnectFailures {
			s.logger.Error("giving up reconnecting",
				"device", s.cfg.ID, "failures", failures)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Session) tryReconnect(ctx context.Context) bool {
	if err := s.probe(ctx); err != nil {
		s.logger.Debug("liveness probe failed", "device", s.cfg.ID, "error", err)
		return false
	}
	if err := s.Connect(ctx); err != nil {
		return false
	}
	return s.Available()
}

// drainBuffer replays buffered commands in submission order. Expired
// entries are dropped; failures are logged and swallowed so one bad
// command cannot block the rest.
func (s *Session) drainBuffer(ctx context.Context) {
	for _, cmd := range s.buffer.takeAll() {
		if s.buffer.expired(cmd) {
			s.logger.Debug("dropping expired buffered command",
				"device", s.cfg.ID, "command", cmd.name)
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
		err := cmd.run(cctx)
		cancel()
		if err != nil {
			s.logger.Warn("buffered command failed",
				"device", s.cfg.ID, "command", cmd.name, "error", err)
		}
	}
}

// waitForReconnect blocks until the running reconnect loop finishes or
// timeout elapses, and reports whether the session came back available.
func (s *Session) waitForReconnect(timeout time.Duration) bool {
	s.taskMu.Lock()
	done := s.reconnectDone
	s.taskMu.Unlock()
	if done == nil {
		return s.Available()
	}
	select {
	case <-done:
		return s.Available()
	case <-time.After(timeout):
		return false
	}
}

// startWatchdog arms the power-off watchdog. Duplicate arms and sessions
// configured always-active are no-ops.
func (s *Session) startWatchdog() {
	if s.cfg.AlwaysActive {
		return
	}
	if !s.watchdogRunning.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.taskMu.Lock()
	s.watchdogCancel = cancel
	s.taskMu.Unlock()
	go s.runWatchdog(ctx)
}

func (s *Session) stopWatchdog() {
	s.taskMu.Lock()
	cancel := s.watchdogCancel
	s.watchdogCancel = nil
	s.taskMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runWatchdog polls the derived state after power-off. If the device is
// still off after every check it closes the connections, once. Any
// transition away from OFF/UNKNOWN/UNAVAILABLE ends the watchdog early.
func (s *Session) runWatchdog(ctx context.Context) {
	defer s.watchdogRunning.Store(false)

	for i := 0; i < s.watchdogChecks; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.watchdogInterval):
		}
		switch s.State() {
		case StateOff, StateUnknown, StateUnavailable:
		default:
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	s.logger.Info("device stayed off, closing connections", "device", s.cfg.ID)
	if err := s.Disconnect(context.Background()); err != nil {
		s.logger.Warn("watchdog disconnect failed", "device", s.cfg.ID, "error", err)
	}
}

// Reconnect arms the background reconnect loop. It returns immediately;
// progress is reported through events.
func (s *Session) Reconnect() {
	s.ensureReconnectLoop()
}

// Disconnect tears the session down: cancels the reconnect loop, watchdog
// and listener, stops transport notifications, and marks the device off
// and unavailable. It is a no-op while a connect is in flight.
func (s *Session) Disconnect(ctx context.Context) error {
	if s.connecting.Load() {
		return nil
	}

	s.taskMu.Lock()
	rcancel := s.reconnectCancel
	lcancel := s.listenerCancel
	s.reconnectCancel = nil
	s.listenerCancel = nil
	s.taskMu.Unlock()
	if rcancel != nil {
		rcancel()
	}
	s.stopWatchdog()
	if lcancel != nil {
		lcancel()
	}

	err := s.tr.StopNotifications(ctx)

	s.mu.Lock()
	s.powered = false
	s.available = false
	s.updateStateLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventDisconnected, DeviceID: s.cfg.ID})
	return err
}

// Close disconnects and releases every background task. The session
// cannot be reused afterwards.
func (s *Session) Close() error {
	err := s.Disconnect(context.Background())
	s.cancel()
	return err
}
