package device

import (
	"context"

	"github.com/hwaldner/avrbridge/internal/avr"
)

// Dispatch routes a named command with loosely typed parameters to a
// session. It serves both the REST command endpoint and the MQTT
// command intake, which share the same command vocabulary.
//
// Unknown commands return StatusNotImplemented; missing or wrongly
// typed parameters return StatusBadRequest.
func Dispatch(ctx context.Context, session *avr.Session, command string, params map[string]any) avr.Status {
	switch command {
	case "power_on":
		return session.PowerOn(ctx)
	case "power_off":
		return session.PowerOff(ctx)
	case "volume":
		level, ok := params["volume"].(float64)
		if !ok {
			return avr.StatusBadRequest
		}
		return session.SetVolume(ctx, level)
	case "volume_up":
		return session.VolumeUp(ctx)
	case "volume_down":
		return session.VolumeDown(ctx)
	case "mute":
		muted, ok := params["muted"].(bool)
		if !ok {
			return avr.StatusBadRequest
		}
		return session.SetMute(ctx, muted)
	case "mute_toggle":
		return session.ToggleMute(ctx)
	case "select_source":
		source, ok := params["source"].(string)
		if !ok {
			return avr.StatusBadRequest
		}
		return session.SelectSource(ctx, source)
	case "select_sound_mode":
		mode, ok := params["mode"].(string)
		if !ok {
			return avr.StatusBadRequest
		}
		return session.SelectSoundMode(ctx, mode)
	case "play_pause":
		return session.PlayPause(ctx)
	case "stop":
		return session.StopPlayback(ctx)
	case "next":
		return session.Next(ctx)
	case "previous":
		return session.Previous(ctx)
	case "setting":
		target, _ := params["target"].(string) //nolint:errcheck // Empty on wrong type, rejected by the device
		value, _ := params["value"].(string)   //nolint:errcheck // Empty on wrong type, rejected by the device
		return session.SetRawSetting(ctx, target, value)
	default:
		return avr.StatusNotImplemented
	}
}
