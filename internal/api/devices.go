package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hwaldner/avrbridge/internal/avr"
	"github.com/hwaldner/avrbridge/internal/device"
)

// deviceResponse is the JSON shape of one device.
type deviceResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Address      string         `json:"address"`
	AlwaysActive bool           `json:"always_active"`
	VolumeStep   float64        `json:"volume_step"`
	Available    bool           `json:"available"`
	EntityID     string         `json:"entity_id"`
	Attributes   map[string]any `json:"attributes"`
}

// devicePayload is the JSON body for create/update requests.
type devicePayload struct {
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	AlwaysActive bool    `json:"always_active"`
	VolumeStep   float64 `json:"volume_step"`
	MACWired     string  `json:"mac_wired"`
	MACWireless  string  `json:"mac_wireless"`
}

func (p devicePayload) toConfig(id string, defaultStep float64) avr.DeviceConfig {
	step := p.VolumeStep
	if step == 0 {
		step = defaultStep
	}
	return avr.DeviceConfig{
		ID:           id,
		Name:         p.Name,
		Address:      p.Address,
		AlwaysActive: p.AlwaysActive,
		VolumeStep:   step,
		MACWired:     p.MACWired,
		MACWireless:  p.MACWireless,
	}
}

func (s *Server) deviceResponse(session *avr.Session) deviceResponse {
	cfg := session.Config()

	attrs := session.Attributes()
	if mp, ok := s.entities.Get(cfg.ID); ok {
		attrs = mp.Attributes()
	}

	return deviceResponse{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Address:      cfg.Address,
		AlwaysActive: cfg.AlwaysActive,
		VolumeStep:   cfg.VolumeStep,
		Available:    session.Available(),
		EntityID:     "media_player." + cfg.ID,
		Attributes:   attrs,
	}
}

// handleListDevices returns every device with its attribute snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	sessions := s.registry.All()
	devices := make([]deviceResponse, 0, len(sessions))
	for _, session := range sessions {
		devices = append(devices, s.deviceResponse(session))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	session, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, s.deviceResponse(session))
}

// handleCreateDevice registers a new device and starts connecting to it
// in the background.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var payload devicePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cfg := payload.toConfig("", s.driver.VolumeStep)
	session, err := s.registry.Add(r.Context(), cfg)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidDevice):
			writeBadRequest(w, err.Error())
		case errors.Is(err, device.ErrDeviceExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "device already exists")
		default:
			writeInternalError(w, "creating device failed")
		}
		return
	}

	s.entities.Add(session.ID(), session.Name(), session.Attributes())

	go func() {
		//nolint:errcheck // Connect failure arms the session's own reconnect loop
		session.Connect(context.Background())
	}()

	writeJSON(w, http.StatusCreated, s.deviceResponse(session))
}

// handleUpdateDevice replaces a device's configuration and rebuilds its
// session.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload devicePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	session, err := s.registry.Update(r.Context(), payload.toConfig(id, s.driver.VolumeStep))
	if err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrInvalidDevice):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "updating device failed")
		}
		return
	}

	s.entities.Add(session.ID(), session.Name(), session.Attributes())

	go func() {
		//nolint:errcheck // Connect failure arms the session's own reconnect loop
		session.Connect(context.Background())
	}()

	writeJSON(w, http.StatusOK, s.deviceResponse(session))
}

// handleDeleteDevice removes a device and its entity.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.Remove(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "removing device failed")
		return
	}

	s.entities.Remove(id)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// stateEntryResponse is the JSON shape of one state history entry.
type stateEntryResponse struct {
	State      string    `json:"state"`
	Volume     float64   `json:"volume"`
	Muted      bool      `json:"muted"`
	Source     string    `json:"source,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// handleDeviceHistory returns recent state transitions, newest first.
// Accepts an optional ?limit= query parameter.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(id); err != nil {
		writeNotFound(w, "device not found")
		return
	}

	entries := []stateEntryResponse{}
	if s.history != nil {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeBadRequest(w, "invalid limit")
				return
			}
			limit = parsed
		}

		records, err := s.history.Recent(r.Context(), id, limit)
		if err != nil {
			writeInternalError(w, "reading state history failed")
			return
		}
		for _, rec := range records {
			entries = append(entries, stateEntryResponse{
				State:      rec.State,
				Volume:     rec.Volume,
				Muted:      rec.Muted,
				Source:     rec.Source,
				RecordedAt: rec.RecordedAt,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}

// commandRequest is the JSON body for the command endpoint.
type commandRequest struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

// handleDeviceCommand dispatches a command to a device session. The
// session reports a status code rather than an error; it maps directly
// onto the HTTP response status.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	session, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	st := s.dispatchCommand(r, session, req)

	body := map[string]any{
		"command": req.Command,
		"status":  int(st),
	}
	if !st.OK() {
		writeJSON(w, int(st), Error{
			Status:  int(st),
			Code:    ErrCodeDevice,
			Message: "command " + req.Command + " failed: " + st.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) dispatchCommand(r *http.Request, session *avr.Session, req commandRequest) avr.Status {
	return device.Dispatch(r.Context(), session, req.Command, req.Params)
}
