package avr

import "strings"

// State is the derived media-player state of a device.
type State int

const (
	StateUnknown State = iota
	StateUnavailable
	StateOff
	StateOn
	StatePlaying
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnavailable:
		return "unavailable"
	case StateOff:
		return "off"
	case StateOn:
		return "on"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// playbackStates maps the receiver's playback status strings to States.
// Statuses not listed here (e.g. transitional ones) leave the playback
// state untouched.
var playbackStates = map[string]State{
	"PLAYING":    StatePlaying,
	"FORWARDING": StatePlaying,
	"PAUSED":     StatePaused,
	"STOPPED":    StateStopped,
}

func lookupPlaybackState(status string) (State, bool) {
	st, ok := playbackStates[strings.ToUpper(status)]
	return st, ok
}

// soundFieldTarget is the device setting that holds the active sound mode.
const soundFieldTarget = "soundField"

// Attribute keys used in UPDATE event payloads and snapshots.
const (
	AttrState         = "state"
	AttrVolume        = "volume"
	AttrMuted         = "muted"
	AttrSource        = "source"
	AttrSourceList    = "source_list"
	AttrSoundMode     = "sound_mode"
	AttrSoundModeList = "sound_mode_list"
	AttrMediaTitle    = "media_title"
	AttrMediaArtist   = "media_artist"
	AttrMediaAlbum    = "media_album"
	AttrMediaImageURL = "media_image_url"
)
