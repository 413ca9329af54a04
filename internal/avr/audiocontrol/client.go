package audiocontrol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hwaldner/avrbridge/internal/avr"
)

const (
	// defaultPort is the Audio Control API port receivers listen on.
	defaultPort = 10000

	// defaultBasePath prefixes every service endpoint.
	defaultBasePath = "/sony"

	httpTimeout = 10 * time.Second
)

// Logger is the minimal structured logging surface the client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client talks to one receiver. It implements avr.Transport.
type Client struct {
	baseURL *url.URL
	httpc   *http.Client
	logger  Logger
	rpcID   atomic.Int64

	mu       sync.Mutex
	handlers avr.NotificationHandlers
	conns    []connCloser
	stopping atomic.Bool
}

type connCloser interface {
	Close() error
}

// New creates a client for the receiver at address. The address may be a
// bare host or IP; the default port (10000) and base path (/sony) are
// added when missing.
func New(address string) (*Client, error) {
	base, err := normalizeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("audiocontrol: invalid address %q: %w", address, err)
	}
	return &Client{
		baseURL: base,
		httpc:   &http.Client{Timeout: httpTimeout},
		logger:  noopLogger{},
	}, nil
}

// SetLogger installs a logger. Nil is ignored.
func (c *Client) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// BaseURL returns the resolved control endpoint.
func (c *Client) BaseURL() string { return c.baseURL.String() }

func normalizeAddress(address string) (*url.URL, error) {
	if address == "" {
		return nil, fmt.Errorf("empty address")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Port() == "" {
		u.Host = u.Hostname() + ":" + strconv.Itoa(defaultPort)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultBasePath
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

// call performs one JSON-RPC exchange against a service endpoint and
// decodes the first result element into out when out is non-nil.
func (c *Client) call(ctx context.Context, service, method, version string, params []any, out any) error {
	op := service + "." + method

	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		Method:  method,
		ID:      c.rpcID.Add(1),
		Params:  params,
		Version: version,
	})
	if err != nil {
		return avr.NewTransportError(op, 0, err)
	}

	endpoint := c.baseURL.String() + "/" + service
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return avr.NewTransportError(op, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return avr.NewTransportError(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return avr.NewTransportError(op, 0, fmt.Errorf("http status %d", resp.StatusCode))
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return avr.NewTransportError(op, 0, fmt.Errorf("decoding response: %w", err))
	}

	if len(rpc.Error) > 0 {
		code, msg := decodeRPCError(rpc.Error)
		return avr.NewTransportError(op, code, fmt.Errorf("%s", msg))
	}

	if out != nil && len(rpc.Result) > 0 {
		if err := json.Unmarshal(rpc.Result[0], out); err != nil {
			return avr.NewTransportError(op, 0, fmt.Errorf("decoding result: %w", err))
		}
	}
	return nil
}

func decodeRPCError(parts []json.RawMessage) (int, string) {
	code := 0
	msg := "device error"
	if len(parts) > 0 {
		_ = json.Unmarshal(parts[0], &code) //nolint:errcheck // Best effort decode
	}
	if len(parts) > 1 {
		_ = json.Unmarshal(parts[1], &msg) //nolint:errcheck // Best effort decode
	}
	return code, msg
}

// ProbeLiveness asks for the supported API surface, the cheapest request
// every firmware answers.
func (c *Client) ProbeLiveness(ctx context.Context) error {
	return c.call(ctx, "guide", "getSupportedApiInfo", "1.0", []any{map[string]any{}}, nil)
}

func (c *Client) InterfaceInfo(ctx context.Context) (*avr.InterfaceInfo, error) {
	var wire wireInterfaceInfo
	if err := c.call(ctx, "system", "getInterfaceInformation", "1.0", nil, &wire); err != nil {
		return nil, err
	}
	return &avr.InterfaceInfo{
		ProductName:      wire.ProductName,
		ProductCategory:  wire.ProductCategory,
		ModelName:        wire.ModelName,
		ServerName:       wire.ServerName,
		InterfaceVersion: wire.InterfaceVersion,
	}, nil
}

func (c *Client) SystemInfo(ctx context.Context) (*avr.SystemInfo, error) {
	var wire wireSystemInfo
	if err := c.call(ctx, "system", "getSystemInformation", "1.4", nil, &wire); err != nil {
		return nil, err
	}
	return &avr.SystemInfo{
		SerialNumber:    wire.SerialNumber,
		MACAddr:         wire.MACAddr,
		WirelessMACAddr: wire.WirelessMACAddr,
		Version:         wire.Version,
	}, nil
}

func (c *Client) SoundSetting(ctx context.Context, target string) (*avr.SoundSetting, error) {
	var wire []wireSoundSetting
	params := []any{map[string]any{"target": target}}
	if err := c.call(ctx, "audio", "getSoundSettings", "1.1", params, &wire); err != nil {
		return nil, err
	}
	if len(wire) == 0 {
		return nil, avr.NewTransportError("audio.getSoundSettings", 0,
			fmt.Errorf("no setting returned for target %q", target))
	}
	setting := &avr.SoundSetting{
		Target:       wire[0].Target,
		CurrentValue: wire[0].CurrentValue,
	}
	for _, cand := range wire[0].Candidate {
		setting.Candidates = append(setting.Candidates, avr.SettingCandidate{
			Title: cand.Title,
			Value: cand.Value,
		})
	}
	return setting, nil
}

func (c *Client) SetSoundSetting(ctx context.Context, target, value string) error {
	params := []any{map[string]any{
		"settings": []map[string]string{{"target": target, "value": value}},
	}}
	return c.call(ctx, "audio", "setSoundSettings", "1.1", params, nil)
}

func (c *Client) VolumeControls(ctx context.Context) ([]avr.VolumeControl, error) {
	var wire []wireVolume
	if err := c.call(ctx, "audio", "getVolumeInformation", "1.1", []any{map[string]any{}}, &wire); err != nil {
		return nil, err
	}
	controls := make([]avr.VolumeControl, 0, len(wire))
	for _, v := range wire {
		controls = append(controls, avr.VolumeControl{
			Output:    v.Output,
			MinVolume: v.MinVolume,
			MaxVolume: v.MaxVolume,
			Volume:    v.Volume,
			Muted:     v.Mute == "on",
		})
	}
	return controls, nil
}

func (c *Client) SetVolume(ctx context.Context, output string, volume int) error {
	// The device wants the raw volume as a string.
	params := []any{map[string]any{
		"output": output,
		"volume": strconv.Itoa(volume),
	}}
	return c.call(ctx, "audio", "setAudioVolume", "1.1", params, nil)
}

func (c *Client) SetMute(ctx context.Context, output string, muted bool) error {
	mute := "off"
	if muted {
		mute = "on"
	}
	params := []any{map[string]any{
		"output": output,
		"mute":   mute,
	}}
	return c.call(ctx, "audio", "setAudioMute", "1.1", params, nil)
}

func (c *Client) PowerStatus(ctx context.Context) (bool, error) {
	var wire wirePowerStatus
	if err := c.call(ctx, "system", "getPowerStatus", "1.1", nil, &wire); err != nil {
		return false, err
	}
	return wire.Status == "active", nil
}

func (c *Client) SetPower(ctx context.Context, on bool) error {
	status := "standby"
	if on {
		status = "active"
	}
	params := []any{map[string]any{"status": status}}
	return c.call(ctx, "system", "setPowerStatus", "1.1", params, nil)
}

func (c *Client) Inputs(ctx context.Context) ([]avr.Input, error) {
	var wire []wireTerminal
	if err := c.call(ctx, "avContent", "getCurrentExternalTerminalsStatus", "1.0", nil, &wire); err != nil {
		return nil, err
	}
	inputs := make([]avr.Input, 0, len(wire))
	for _, t := range wire {
		// Outputs (meta:zone) show up in the terminal list too; only
		// selectable inputs are interesting.
		if !strings.HasPrefix(t.URI, "extInput:") {
			continue
		}
		inputs = append(inputs, avr.Input{
			URI:    t.URI,
			Title:  t.Title,
			Active: t.Active == "active" || t.Active == "true",
		})
	}
	return inputs, nil
}

func (c *Client) SelectInput(ctx context.Context, uri string) error {
	params := []any{map[string]any{"uri": uri}}
	return c.call(ctx, "avContent", "setPlayContent", "1.2", params, nil)
}

func (c *Client) PlayInfo(ctx context.Context) ([]avr.PlayInfo, error) {
	var wire []wirePlayInfo
	if err := c.call(ctx, "avContent", "getPlayingContentInfo", "1.2", []any{map[string]any{}}, &wire); err != nil {
		return nil, err
	}
	infos := make([]avr.PlayInfo, 0, len(wire))
	for _, p := range wire {
		infos = append(infos, avr.PlayInfo{
			State:        p.StateInfo.State,
			URI:          p.URI,
			Title:        p.Title,
			Artist:       p.Artist,
			Album:        p.AlbumName,
			ThumbnailURL: p.Content.ThumbnailURL,
		})
	}
	return infos, nil
}

func (c *Client) Raw(ctx context.Context, service, method string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	return c.call(ctx, service, method, "1.1", []any{params}, nil)
}
