package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hwaldner/avrbridge/internal/avr"
	"github.com/hwaldner/avrbridge/internal/infrastructure/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing test database: %v", err)
		}
	})

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func testConfig(id string) avr.DeviceConfig {
	return avr.DeviceConfig{
		ID:         id,
		Name:       "Living Room AVR",
		Address:    "192.168.1.40",
		VolumeStep: 2.0,
	}
}

func TestStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(newTestDB(t).DB)

	cfg := testConfig("avr-1")
	cfg.AlwaysActive = true
	cfg.MACWired = "aa:bb:cc:dd:ee:ff"

	if err := store.Create(ctx, &Record{DeviceConfig: cfg}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.GetByID(ctx, "avr-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != cfg.Name || got.Address != cfg.Address {
		t.Errorf("got %+v, want name/address from %+v", got, cfg)
	}
	if !got.AlwaysActive {
		t.Error("AlwaysActive not persisted")
	}
	if got.MACWired != cfg.MACWired {
		t.Errorf("MACWired = %q, want %q", got.MACWired, cfg.MACWired)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestStoreCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(newTestDB(t).DB)

	if err := store.Create(ctx, &Record{DeviceConfig: testConfig("avr-1")}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := store.Create(ctx, &Record{DeviceConfig: testConfig("avr-1")})
	if !errors.Is(err, ErrDeviceExists) {
		t.Errorf("Create() duplicate error = %v, want ErrDeviceExists", err)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := NewSQLiteStore(newTestDB(t).DB)

	_, err := store.GetByID(context.Background(), "nope")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(newTestDB(t).DB)

	rec := &Record{DeviceConfig: testConfig("avr-1")}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec.Name = "Cinema AVR"
	rec.VolumeStep = 5.0
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.GetByID(ctx, "avr-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Cinema AVR" || got.VolumeStep != 5.0 {
		t.Errorf("got %+v after update", got)
	}
}

func TestStoreUpdateMissing(t *testing.T) {
	store := NewSQLiteStore(newTestDB(t).DB)

	err := store.Update(context.Background(), &Record{DeviceConfig: testConfig("nope")})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Update() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(newTestDB(t).DB)

	if err := store.Create(ctx, &Record{DeviceConfig: testConfig("avr-1")}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Delete(ctx, "avr-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.GetByID(ctx, "avr-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrDeviceNotFound", err)
	}
	if err := store.Delete(ctx, "avr-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete() again error = %v, want ErrDeviceNotFound", err)
	}
}

func TestStoreListOrderedByName(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(newTestDB(t).DB)

	for _, d := range []struct{ id, name string }{
		{"avr-2", "Office"},
		{"avr-1", "Cinema"},
		{"avr-3", "Kitchen"},
	} {
		cfg := testConfig(d.id)
		cfg.Name = d.name
		if err := store.Create(ctx, &Record{DeviceConfig: cfg}); err != nil {
			t.Fatalf("Create(%s) error = %v", d.id, err)
		}
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	want := []string{"Cinema", "Kitchen", "Office"}
	for i, name := range want {
		if records[i].Name != name {
			t.Errorf("records[%d].Name = %q, want %q", i, records[i].Name, name)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*avr.DeviceConfig)
		wantErr bool
	}{
		{
			name:   "valid",
			mutate: func(*avr.DeviceConfig) {},
		},
		{
			name:    "missing name",
			mutate:  func(c *avr.DeviceConfig) { c.Name = "  " },
			wantErr: true,
		},
		{
			name:    "missing address",
			mutate:  func(c *avr.DeviceConfig) { c.Address = "" },
			wantErr: true,
		},
		{
			name:    "volume step out of range",
			mutate:  func(c *avr.DeviceConfig) { c.VolumeStep = 150 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("avr-1")
			tt.mutate(&cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("error %v should wrap ErrInvalidDevice", err)
			}
		})
	}
}

func TestStateHistoryRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewSQLiteStore(db.DB)
	history := NewSQLiteStateHistory(db.DB)

	if err := store.Create(ctx, &Record{DeviceConfig: testConfig("avr-1")}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, state := range []string{"off", "on", "playing"} {
		err := history.Record(ctx, StateEntry{
			DeviceID:   "avr-1",
			State:      state,
			Volume:     float64(20 + i),
			Source:     "Blu-ray",
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record(%s) error = %v", state, err)
		}
	}

	entries, err := history.Recent(ctx, "avr-1", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].State != "playing" || entries[1].State != "on" {
		t.Errorf("entries not newest first: %+v", entries)
	}
	if entries[0].Volume != 22 {
		t.Errorf("Volume = %v, want 22", entries[0].Volume)
	}
}

func TestStateHistoryRequiresDeviceID(t *testing.T) {
	history := NewSQLiteStateHistory(newTestDB(t).DB)

	if err := history.Record(context.Background(), StateEntry{State: "on"}); err == nil {
		t.Error("Record() without device id should fail")
	}
	if _, err := history.Recent(context.Background(), "", 10); err == nil {
		t.Error("Recent() without device id should fail")
	}
}
