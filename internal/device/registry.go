package device

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hwaldner/avrbridge/internal/avr"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TransportFactory builds a transport for a device address. The Registry
// calls it once per session it creates.
type TransportFactory func(address string) (avr.Transport, error)

// Registry owns the live sessions for every persisted device.
//
// It loads device rows from the Store, builds one avr.Session per row,
// and forwards every session event to its subscribers. Configuration
// changes go through the Registry so the session is rebuilt against the
// new settings.
//
// All public methods are thread-safe.
type Registry struct {
	store   Store
	factory TransportFactory
	logger  Logger

	mu       sync.RWMutex
	sessions map[string]*avr.Session

	handlersMu sync.RWMutex
	handlers   []avr.EventHandler
}

// NewRegistry creates a new device registry.
func NewRegistry(store Store, factory TransportFactory) *Registry {
	return &Registry{
		store:    store,
		factory:  factory,
		logger:   noopLogger{},
		sessions: make(map[string]*avr.Session),
	}
}

// SetLogger sets the logger for the registry. Nil is ignored.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Subscribe registers a handler for events from every session, current
// and future. Handlers run synchronously on the session's goroutine and
// must not block.
func (r *Registry) Subscribe(h avr.EventHandler) {
	r.handlersMu.Lock()
	r.handlers = append(r.handlers, h)
	r.handlersMu.Unlock()
}

func (r *Registry) dispatch(e avr.Event) {
	r.handlersMu.RLock()
	handlers := make([]avr.EventHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.handlersMu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// Load reads all persisted devices and builds a session for each.
// This should be called once on application startup.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range records {
		rec := records[i]
		if _, ok := r.sessions[rec.ID]; ok {
			continue
		}
		session, err := r.buildSession(rec.DeviceConfig)
		if err != nil {
			r.logger.Error("skipping device with bad configuration",
				"id", rec.ID, "name", rec.Name, "error", err)
			continue
		}
		r.sessions[rec.ID] = session
	}

	r.logger.Info("device registry loaded", "count", len(r.sessions))
	return nil
}

// Add validates, persists and builds a session for a new device.
// An empty ID gets one generated. The session is not connected; call
// Connect on it or use ConnectAll.
func (r *Registry) Add(ctx context.Context, cfg avr.DeviceConfig) (*avr.Session, error) {
	if cfg.ID == "" {
		cfg.ID = GenerateID()
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	session, err := r.buildSession(cfg)
	if err != nil {
		return nil, err
	}

	if err := r.store.Create(ctx, &Record{DeviceConfig: cfg}); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[cfg.ID] = session
	r.mu.Unlock()

	r.logger.Info("device added", "id", cfg.ID, "name", cfg.Name)
	return session, nil
}

// Update persists new configuration for an existing device and rebuilds
// its session. The old session is closed first so its reconnect loop and
// notification listener stop before the replacement takes over.
func (r *Registry) Update(ctx context.Context, cfg avr.DeviceConfig) (*avr.Session, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	if _, err := r.store.GetByID(ctx, cfg.ID); err != nil {
		return nil, err
	}

	session, err := r.buildSession(cfg)
	if err != nil {
		return nil, err
	}

	if err := r.store.Update(ctx, &Record{DeviceConfig: cfg}); err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.sessions[cfg.ID]
	r.sessions[cfg.ID] = session
	r.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			r.logger.Warn("closing replaced session", "id", cfg.ID, "error", err)
		}
	}

	r.logger.Info("device updated", "id", cfg.ID, "name", cfg.Name)
	return session, nil
}

// Remove closes the device's session and deletes the persisted row.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	session := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			r.logger.Warn("closing removed session", "id", id, "error", err)
		}
	}

	r.logger.Info("device removed", "id", id)
	return nil
}

// Clear removes every device: sessions are closed and persisted rows
// deleted. Used when the bridge configuration is reset.
func (r *Registry) Clear(ctx context.Context) error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*avr.Session)
	r.mu.Unlock()

	var firstErr error
	for id, session := range sessions {
		if err := session.Close(); err != nil {
			r.logger.Warn("closing session", "id", id, "error", err)
		}
		if err := r.store.Delete(ctx, id); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("deleting device %q: %w", id, err)
		}
	}

	r.logger.Info("registry cleared", "devices", len(sessions))
	return firstErr
}

// Get returns the live session for a device ID.
func (r *Registry) Get(id string) (*avr.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return session, nil
}

// All returns every live session ordered by device name.
func (r *Registry) All() []*avr.Session {
	r.mu.RLock()
	sessions := make([]*avr.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Name() < sessions[j].Name()
	})
	return sessions
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ConnectAll starts a connection attempt on every session. A device
// that cannot be reached arms its own reconnect loop, so failures here
// are logged rather than returned.
func (r *Registry) ConnectAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, session := range r.All() {
		session := session
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := session.Connect(ctx); err != nil {
				r.logger.Warn("initial connect failed",
					"id", session.ID(), "name", session.Name(), "error", err)
			}
		}()
	}
	wg.Wait()
}

// DisconnectAll disconnects every session without discarding it.
func (r *Registry) DisconnectAll(ctx context.Context) {
	for _, session := range r.All() {
		if err := session.Disconnect(ctx); err != nil {
			r.logger.Warn("disconnect failed", "id", session.ID(), "error", err)
		}
	}
}

// Close shuts down every session. The registry is unusable afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*avr.Session)
	r.mu.Unlock()

	for id, session := range sessions {
		if err := session.Close(); err != nil {
			r.logger.Warn("closing session", "id", id, "error", err)
		}
	}
	return nil
}

func (r *Registry) buildSession(cfg avr.DeviceConfig) (*avr.Session, error) {
	tr, err := r.factory(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("building transport for %q: %w", cfg.Address, err)
	}

	session := avr.NewSession(cfg, tr)
	session.SetLogger(r.logger)
	session.Subscribe(r.dispatch)
	return session, nil
}
