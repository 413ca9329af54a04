package avr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// mockTransport is a scriptable in-memory Transport.
type mockTransport struct {
	mu sync.Mutex

	probeErr   error
	probeBlock chan struct{}
	probeCalls int

	iface    InterfaceInfo
	sys      SystemInfo
	sound    SoundSetting
	controls []VolumeControl
	powered  bool
	inputs   []Input
	playing  []PlayInfo

	setVolumeCalls []int
	selectedInputs []string
	stopCalls      int

	ops []string

	handlers NotificationHandlers
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		iface: InterfaceInfo{ProductName: "STR-DN1080", ModelName: "STR-DN1080"},
		sys:   SystemInfo{SerialNumber: "SN123456", MACAddr: "aa:bb:cc:dd:ee:ff"},
		sound: SoundSetting{
			Target:       "soundField",
			CurrentValue: "stereo",
			Candidates: []SettingCandidate{
				{Title: "Stereo", Value: "stereo"},
				{Title: "Surround", Value: "surround"},
			},
		},
		controls: []VolumeControl{{Output: "zone1", MinVolume: 0, MaxVolume: 50, Volume: 25}},
		powered:  true,
		inputs: []Input{
			{URI: "extInput:hdmi1", Title: "Blu-ray", Active: true},
			{URI: "extInput:hdmi2", Title: "Game"},
		},
	}
}

func (m *mockTransport) record(op string) {
	m.ops = append(m.ops, op)
}

func (m *mockTransport) opsSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.ops))
	copy(out, m.ops)
	return out
}

func (m *mockTransport) probeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeCalls
}

func (m *mockTransport) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

func (m *mockTransport) setProbeErr(err error) {
	m.mu.Lock()
	m.probeErr = err
	m.mu.Unlock()
}

func (m *mockTransport) notificationHandlers() NotificationHandlers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers
}

func (m *mockTransport) ProbeLiveness(ctx context.Context) error {
	m.mu.Lock()
	m.probeCalls++
	err := m.probeErr
	block := m.probeBlock
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return NewTransportError("probe", 0, ctx.Err())
		}
	}
	if err != nil {
		return NewTransportError("probe", 0, err)
	}
	return nil
}

func (m *mockTransport) InterfaceInfo(context.Context) (*InterfaceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.iface
	return &info, nil
}

func (m *mockTransport) SystemInfo(context.Context) (*SystemInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.sys
	return &info, nil
}

func (m *mockTransport) SoundSetting(_ context.Context, target string) (*SoundSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	setting := m.sound
	return &setting, nil
}

func (m *mockTransport) SetSoundSetting(_ context.Context, target, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("setSoundSetting:%s=%s", target, value))
	return nil
}

func (m *mockTransport) VolumeControls(context.Context) ([]VolumeControl, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]VolumeControl, len(m.controls))
	copy(out, m.controls)
	return out, nil
}

func (m *mockTransport) SetVolume(_ context.Context, output string, volume int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setVolumeCalls = append(m.setVolumeCalls, volume)
	m.record(fmt.Sprintf("setVolume:%d", volume))
	return nil
}

func (m *mockTransport) SetMute(_ context.Context, output string, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("setMute:%t", muted))
	return nil
}

func (m *mockTransport) PowerStatus(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.powered, nil
}

func (m *mockTransport) SetPower(_ context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("setPower:%t", on))
	return nil
}

func (m *mockTransport) Inputs(context.Context) ([]Input, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Input, len(m.inputs))
	copy(out, m.inputs)
	return out, nil
}

func (m *mockTransport) SelectInput(_ context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectedInputs = append(m.selectedInputs, uri)
	m.record("selectInput:" + uri)
	return nil
}

func (m *mockTransport) PlayInfo(context.Context) ([]PlayInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PlayInfo, len(m.playing))
	copy(out, m.playing)
	return out, nil
}

func (m *mockTransport) Raw(_ context.Context, service, method string, params map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("raw:" + service + "." + method)
	return nil
}

func (m *mockTransport) RegisterNotificationHandlers(h NotificationHandlers) {
	m.mu.Lock()
	m.handlers = h
	m.mu.Unlock()
}

func (m *mockTransport) ListenNotifications(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockTransport) StopNotifications(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return nil
}

// eventRecorder collects session events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// newTestSession builds a session with timings shortened for tests.
func newTestSession(m *mockTransport, cfg DeviceConfig) *Session {
	if cfg.ID == "" {
		cfg.ID = "avr-1"
	}
	if cfg.Address == "" {
		cfg.Address = "http://10.0.0.5:10000/sony"
	}
	s := NewSession(cfg, m)
	s.commandTimeout = 100 * time.Millisecond
	s.probeTimeout = 50 * time.Millisecond
	s.reconnectDelay = 10 * time.Millisecond
	s.maxReconnectFailures = 3
	s.watchdogInterval = 10 * time.Millisecond
	s.watchdogChecks = 3
	return s
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

var errDeviceDown = errors.New("device down")
