package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hwaldner/avrbridge/internal/infrastructure/config"
	"github.com/hwaldner/avrbridge/internal/infrastructure/influxdb"
)

// fakeInflux stands in for an InfluxDB v2 server. It answers pings and
// records write bodies so tests can assert on the line protocol.
type fakeInflux struct {
	mu     sync.Mutex
	writes []string
}

func (f *fakeInflux) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ping":
			w.WriteHeader(http.StatusNoContent)
		case strings.HasPrefix(r.URL.Path, "/api/v2/write"):
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.writes = append(f.writes, string(body))
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeInflux) recorded() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func testInfluxConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "avrbridge",
		Bucket:        "telemetry",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnectDisabled(t *testing.T) {
	cfg := testInfluxConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := testInfluxConfig("http://127.0.0.1:1")

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndWrite(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client, err := influxdb.Connect(testInfluxConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.WriteStateTransition("avr-1", "playing", 32.5, false)
	client.WriteVolumeChange("avr-1", 34.0, false)
	client.WriteConnectionEvent("avr-1", "connected")
	client.Flush()

	recorded := fake.recorded()
	for _, want := range []string{"avr_state", "avr_volume", "avr_connection", "device_id=avr-1", "state=playing"} {
		if !strings.Contains(recorded, want) {
			t.Errorf("recorded writes missing %q:\n%s", want, recorded)
		}
	}
}

func TestCloseDropsSubsequentWrites(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client, err := influxdb.Connect(testInfluxConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Writes after close are silently dropped.
	client.WriteStateTransition("avr-1", "on", 20.0, false)
	client.Flush()

	if got := fake.recorded(); strings.Contains(got, "avr_state") {
		t.Errorf("write after close reached the server:\n%s", got)
	}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after close = %v, want ErrNotConnected", err)
	}
}
