package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hwaldner/avrbridge/internal/api"
	"github.com/hwaldner/avrbridge/internal/avr"
	"github.com/hwaldner/avrbridge/internal/device"
	"github.com/hwaldner/avrbridge/internal/entity"
	"github.com/hwaldner/avrbridge/internal/infrastructure/influxdb"
	"github.com/hwaldner/avrbridge/internal/infrastructure/logging"
	"github.com/hwaldner/avrbridge/internal/infrastructure/mqtt"
)

// historyWriteTimeout bounds a single state history insert.
const historyWriteTimeout = 5 * time.Second

// eventFanout routes session events to the WebSocket hub, MQTT,
// InfluxDB and the state history table. The hub, mqtt and influx
// fields may be nil when the corresponding surface is disabled.
type eventFanout struct {
	log      *logging.Logger
	registry *device.Registry
	entities *entity.Manager
	hub      *api.Hub
	mqtt     *mqtt.Client
	influx   *influxdb.Client
	history  device.StateHistory
}

// handle receives session events. It runs on the emitting goroutine, so
// the entity diff is applied synchronously and slower outputs are
// published in the background.
func (f *eventFanout) handle(e avr.Event) {
	switch e.Type {
	case avr.EventConnected:
		f.publishAvailability(e.DeviceID, true)
	case avr.EventDisconnected:
		f.publishAvailability(e.DeviceID, false)
	case avr.EventUpdate:
		f.applyUpdate(e)
	case avr.EventConnecting, avr.EventError:
		// Lifecycle noise, not republished.
	}
}

// applyUpdate folds changed attributes into the device's entity and
// republishes the diff. A nil attribute map means the whole device
// state was re-read, so a fresh snapshot is diffed instead.
func (f *eventFanout) applyUpdate(e avr.Event) {
	session, err := f.registry.Get(e.DeviceID)
	if err != nil {
		return
	}

	attrs := e.Attributes
	if attrs == nil {
		attrs = session.Attributes()
	}

	mp, ok := f.entities.Get(e.DeviceID)
	if !ok {
		mp = f.entities.Add(session.ID(), session.Name(), nil)
	}

	diff := mp.Apply(attrs)
	if len(diff) == 0 {
		return
	}
	snapshot := mp.Attributes()

	if f.hub != nil {
		f.hub.Broadcast(api.ChannelEntityUpdate, map[string]any{
			"entity_id":  mp.ID(),
			"device_id":  e.DeviceID,
			"attributes": diff,
		})
	}

	go f.recordUpdate(e.DeviceID, diff, snapshot)
}

// recordUpdate pushes an applied diff to the retained MQTT state topic,
// InfluxDB, and the state history table.
func (f *eventFanout) recordUpdate(deviceID string, diff, snapshot map[string]any) {
	state, _ := snapshot[avr.AttrState].(string)    //nolint:errcheck // Zero value on missing key
	volume, _ := snapshot[avr.AttrVolume].(float64) //nolint:errcheck // Zero value on missing key
	muted, _ := snapshot[avr.AttrMuted].(bool)      //nolint:errcheck // Zero value on missing key
	source, _ := snapshot[avr.AttrSource].(string)  //nolint:errcheck // Zero value on missing key

	if f.mqtt != nil {
		payload, err := json.Marshal(snapshot)
		if err == nil {
			topic := mqtt.Topics{}.DeviceState(deviceID)
			if pubErr := f.mqtt.PublishRetained(topic, payload); pubErr != nil {
				f.log.Warn("publishing device state failed", "device_id", deviceID, "error", pubErr)
			}
		}
	}

	_, stateChanged := diff[avr.AttrState]
	_, volumeChanged := diff[avr.AttrVolume]
	_, mutedChanged := diff[avr.AttrMuted]

	if f.influx != nil {
		if stateChanged {
			f.influx.WriteStateTransition(deviceID, state, volume, muted)
		} else if volumeChanged || mutedChanged {
			f.influx.WriteVolumeChange(deviceID, volume, muted)
		}
	}

	if stateChanged && f.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()
		entry := device.StateEntry{
			DeviceID: deviceID,
			State:    state,
			Volume:   volume,
			Muted:    muted,
			Source:   source,
		}
		if err := f.history.Record(ctx, entry); err != nil {
			f.log.Warn("recording state history failed", "device_id", deviceID, "error", err)
		}
	}
}

// publishAvailability broadcasts connection lifecycle changes.
func (f *eventFanout) publishAvailability(deviceID string, online bool) {
	status := "offline"
	event := "disconnected"
	if online {
		status = "online"
		event = "connected"
	}

	if f.hub != nil {
		f.hub.Broadcast(api.ChannelDeviceEvent, map[string]any{
			"device_id": deviceID,
			"event":     event,
		})
	}

	go func() {
		if f.mqtt != nil {
			topic := mqtt.Topics{}.DeviceAvailability(deviceID)
			if err := f.mqtt.PublishRetained(topic, []byte(status)); err != nil {
				f.log.Warn("publishing availability failed", "device_id", deviceID, "error", err)
			}
		}
		if f.influx != nil {
			f.influx.WriteConnectionEvent(deviceID, event)
		}
	}()
}
