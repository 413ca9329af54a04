package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hwaldner/avrbridge/internal/avr"
	"github.com/hwaldner/avrbridge/internal/device"
	"github.com/hwaldner/avrbridge/internal/entity"
	"github.com/hwaldner/avrbridge/internal/infrastructure/database"
	"github.com/hwaldner/avrbridge/internal/infrastructure/logging"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("AVRBRIDGE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("AVRBRIDGE_CONFIG", "/etc/avrbridge/config.yaml")
	if got := getConfigPath(); got != "/etc/avrbridge/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	t.Setenv("AVRBRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// stubTransport is a minimal healthy transport so sessions can connect.
type stubTransport struct{}

func (stubTransport) ProbeLiveness(context.Context) error { return nil }

func (stubTransport) InterfaceInfo(context.Context) (*avr.InterfaceInfo, error) {
	return &avr.InterfaceInfo{ModelName: "STR-DN1080"}, nil
}

func (stubTransport) SystemInfo(context.Context) (*avr.SystemInfo, error) {
	return &avr.SystemInfo{SerialNumber: "SN1"}, nil
}

func (stubTransport) SoundSetting(context.Context, string) (*avr.SoundSetting, error) {
	return &avr.SoundSetting{
		Target:       "soundField",
		CurrentValue: "stereo",
		Candidates:   []avr.SettingCandidate{{Title: "Stereo", Value: "stereo"}},
	}, nil
}

func (stubTransport) SetSoundSetting(context.Context, string, string) error { return nil }

func (stubTransport) VolumeControls(context.Context) ([]avr.VolumeControl, error) {
	return []avr.VolumeControl{{Output: "zone1", MaxVolume: 50, Volume: 25}}, nil
}

func (stubTransport) SetVolume(context.Context, string, int) error { return nil }
func (stubTransport) SetMute(context.Context, string, bool) error  { return nil }
func (stubTransport) PowerStatus(context.Context) (bool, error)    { return true, nil }
func (stubTransport) SetPower(context.Context, bool) error         { return nil }

func (stubTransport) Inputs(context.Context) ([]avr.Input, error) {
	return []avr.Input{{URI: "extInput:hdmi1", Title: "Blu-ray", Active: true}}, nil
}

func (stubTransport) SelectInput(context.Context, string) error { return nil }

func (stubTransport) PlayInfo(context.Context) ([]avr.PlayInfo, error) { return nil, nil }

func (stubTransport) Raw(context.Context, string, string, map[string]any) error { return nil }

func (stubTransport) RegisterNotificationHandlers(avr.NotificationHandlers) {}

func (stubTransport) ListenNotifications(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stubTransport) StopNotifications(context.Context) error { return nil }

type testBridge struct {
	db       *database.DB
	registry *device.Registry
	entities *entity.Manager
	history  device.StateHistory
	session  *avr.Session
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	registry := device.NewRegistry(device.NewSQLiteStore(db.DB), func(string) (avr.Transport, error) {
		return stubTransport{}, nil
	})
	t.Cleanup(func() { registry.Close() })

	session, err := registry.Add(context.Background(), avr.DeviceConfig{
		Name:       "Living Room AVR",
		Address:    "192.168.1.40",
		VolumeStep: 2.0,
	})
	if err != nil {
		t.Fatalf("adding device: %v", err)
	}
	if err := session.Connect(context.Background()); err != nil {
		t.Fatalf("connecting session: %v", err)
	}

	entities := entity.NewManager()
	entities.Add(session.ID(), session.Name(), session.Attributes())

	return &testBridge{
		db:       db,
		registry: registry,
		entities: entities,
		history:  device.NewSQLiteStateHistory(db.DB),
		session:  session,
	}
}

func TestHandleCommandMessage(t *testing.T) {
	b := newTestBridge(t)
	id := b.session.ID()

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr string
	}{
		{"valid volume", "avrbridge/" + id + "/set", `{"command":"volume","params":{"volume":40}}`, ""},
		{"valid power", "avrbridge/" + id + "/set", `{"command":"power_on"}`, ""},
		{"bad topic", "avrbridge/status", `{"command":"power_on"}`, "unrecognised command topic"},
		{"unknown device", "avrbridge/missing/set", `{"command":"power_on"}`, "unknown device"},
		{"bad json", "avrbridge/" + id + "/set", `{`, "decoding command payload"},
		{"missing command", "avrbridge/" + id + "/set", `{"params":{}}`, "missing command"},
		{"unknown command", "avrbridge/" + id + "/set", `{"command":"open_drawer"}`, "not_implemented"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handleCommandMessage(b.registry, tt.topic, []byte(tt.payload))
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("handleCommandMessage() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("handleCommandMessage() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestEventFanoutRecordsHistory(t *testing.T) {
	b := newTestBridge(t)
	id := b.session.ID()

	fanout := &eventFanout{
		log:      logging.Default(),
		registry: b.registry,
		entities: b.entities,
		history:  b.history,
	}

	fanout.handle(avr.Event{
		Type:     avr.EventUpdate,
		DeviceID: id,
		Attributes: map[string]any{
			avr.AttrState:  "playing",
			avr.AttrVolume: 36.0,
		},
	})

	// The history write happens on a background goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := b.history.Recent(context.Background(), id, 10)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(entries) > 0 {
			if entries[0].State != "playing" {
				t.Errorf("recorded state = %q, want playing", entries[0].State)
			}
			if entries[0].Volume != 36.0 {
				t.Errorf("recorded volume = %v, want 36", entries[0].Volume)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("state history entry never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The entity cache advanced with the diff.
	mp, _ := b.entities.Get(id)
	if got := mp.Attributes()[avr.AttrState]; got != "playing" {
		t.Errorf("entity state = %v, want playing", got)
	}
}

func TestEventFanoutIgnoresUnchanged(t *testing.T) {
	b := newTestBridge(t)
	id := b.session.ID()

	fanout := &eventFanout{
		log:      logging.Default(),
		registry: b.registry,
		entities: b.entities,
		history:  b.history,
	}

	mp, _ := b.entities.Get(id)
	current := mp.Attributes()[avr.AttrState]

	// Re-applying the current state must not record a transition.
	fanout.handle(avr.Event{
		Type:       avr.EventUpdate,
		DeviceID:   id,
		Attributes: map[string]any{avr.AttrState: current},
	})

	time.Sleep(50 * time.Millisecond)
	entries, err := b.history.Recent(context.Background(), id, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no history entries, got %d", len(entries))
	}
}
