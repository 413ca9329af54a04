package audiocontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/hwaldner/avrbridge/internal/avr"
)

// notificationServices are the service channels that push the
// notifications the session cares about.
var notificationServices = []string{"system", "audio", "avContent"}

const (
	wsHandshakeTimeout = 5 * time.Second
	wsWriteTimeout     = 5 * time.Second
)

// RegisterNotificationHandlers installs the push handlers used by the
// next ListenNotifications call.
func (c *Client) RegisterNotificationHandlers(h avr.NotificationHandlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// ListenNotifications opens one websocket per notification service and
// blocks reading pushed notifications. It returns when ctx is cancelled,
// StopNotifications is called, or any channel drops; an unexpected drop
// also fires the ConnectionLost handler.
func (c *Client) ListenNotifications(ctx context.Context) error {
	c.stopping.Store(false)

	g, gctx := errgroup.WithContext(ctx)
	for _, service := range notificationServices {
		service := service
		g.Go(func() error {
			return c.listenService(gctx, service)
		})
	}

	err := g.Wait()
	c.closeConns()

	if err != nil && ctx.Err() == nil && !c.stopping.Load() {
		if h := c.currentHandlers().ConnectionLost; h != nil {
			h(err)
		}
	}
	return err
}

// StopNotifications closes every notification channel without firing
// ConnectionLost.
func (c *Client) StopNotifications(context.Context) error {
	c.stopping.Store(true)
	c.closeConns()
	return nil
}

func (c *Client) currentHandlers() avr.NotificationHandlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func (c *Client) trackConn(conn connCloser) {
	c.mu.Lock()
	c.conns = append(c.conns, conn)
	c.mu.Unlock()
}

func (c *Client) closeConns() {
	c.mu.Lock()
	conns := c.conns
	c.conns = nil
	c.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close() //nolint:errcheck // Best effort teardown
	}
}

func (c *Client) wsURL(service string) string {
	scheme := "ws"
	if c.baseURL.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s/%s", scheme, c.baseURL.Host, c.baseURL.Path, service)
}

func (c *Client) listenService(ctx context.Context, service string) error {
	dialer := &websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.wsURL(service), nil)
	if err != nil {
		return avr.NewTransportError(service+".listen", 0, err)
	}
	c.trackConn(conn)

	// Unblock the read loop when the listener is cancelled.
	go func() {
		<-ctx.Done()
		_ = conn.Close() //nolint:errcheck // Best effort unblock
	}()

	if err := c.enableNotifications(conn); err != nil {
		return avr.NewTransportError(service+".listen", 0, err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || c.stopping.Load() {
				return nil
			}
			return avr.NewTransportError(service+".listen", 0, err)
		}
		c.dispatch(service, data)
	}
}

// enableNotifications performs the switchNotifications handshake: ask for
// the channel's notification inventory, then enable all of it.
func (c *Client) enableNotifications(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck // Deadline errors surface on write
	if err := conn.WriteJSON(rpcRequest{
		Method:  "switchNotifications",
		ID:      1,
		Params:  []any{map[string]any{}},
		Version: "1.0",
	}); err != nil {
		return fmt.Errorf("querying notifications: %w", err)
	}

	var resp struct {
		ID     int64 `json:"id"`
		Result []struct {
			Enabled  []notificationRef `json:"enabled"`
			Disabled []notificationRef `json:"disabled"`
		} `json:"result"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("reading notification inventory: %w", err)
	}
	if len(resp.Result) == 0 {
		return nil
	}

	all := append(resp.Result[0].Enabled, resp.Result[0].Disabled...)
	if len(all) == 0 {
		return nil
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck // Deadline errors surface on write
	if err := conn.WriteJSON(rpcRequest{
		Method:  "switchNotifications",
		ID:      2,
		Params:  []any{map[string]any{"enabled": all}},
		Version: "1.0",
	}); err != nil {
		return fmt.Errorf("enabling notifications: %w", err)
	}
	return nil
}

// notification is a pushed frame. Frames carrying an id are RPC replies
// (e.g. to the enable request) and are ignored by dispatch.
type notification struct {
	ID     int64             `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (c *Client) dispatch(service string, data []byte) {
	var n notification
	if err := json.Unmarshal(data, &n); err != nil {
		c.logger.Debug("dropping unparseable notification", "service", service, "error", err)
		return
	}
	if n.ID != 0 || n.Method == "" || len(n.Params) == 0 {
		return
	}

	handlers := c.currentHandlers()
	switch n.Method {
	case "notifyVolumeInformation":
		if handlers.VolumeChanged == nil {
			return
		}
		var wire wireVolume
		if err := json.Unmarshal(n.Params[0], &wire); err != nil {
			c.logger.Debug("bad volume notification", "error", err)
			return
		}
		handlers.VolumeChanged(avr.VolumeChange{
			Output: wire.Output,
			Volume: wire.Volume,
			Muted:  wire.Mute == "on",
		})

	case "notifyPlayingContentInfo":
		if handlers.ContentChanged == nil {
			return
		}
		var wire wirePlayInfo
		if err := json.Unmarshal(n.Params[0], &wire); err != nil {
			c.logger.Debug("bad content notification", "error", err)
			return
		}
		handlers.ContentChanged(avr.ContentChange{
			State:        wire.StateInfo.State,
			URI:          wire.URI,
			Title:        wire.Title,
			Artist:       wire.Artist,
			Album:        wire.AlbumName,
			ThumbnailURL: wire.Content.ThumbnailURL,
		})

	case "notifyPowerStatus":
		if handlers.PowerChanged == nil {
			return
		}
		var wire wirePowerStatus
		if err := json.Unmarshal(n.Params[0], &wire); err != nil {
			c.logger.Debug("bad power notification", "error", err)
			return
		}
		handlers.PowerChanged(avr.PowerChange{Powered: wire.Status == "active"})

	default:
		c.logger.Debug("ignoring notification", "service", service, "method", n.Method)
	}
}
