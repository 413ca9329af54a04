package avr

import "context"

// InterfaceInfo describes the control interface of a device.
type InterfaceInfo struct {
	ProductName      string
	ProductCategory  string
	ModelName        string
	ServerName       string
	InterfaceVersion string
}

// SystemInfo identifies a device on the network.
type SystemInfo struct {
	SerialNumber    string
	MACAddr         string
	WirelessMACAddr string
	Version         string
}

// SettingCandidate is one selectable value of a device setting.
type SettingCandidate struct {
	Title string
	Value string
}

// SoundSetting is a device setting with its current value and the values
// the device accepts for it.
type SoundSetting struct {
	Target       string
	CurrentValue string
	Candidates   []SettingCandidate
}

// VolumeControl is one volume output of the device with its raw range.
type VolumeControl struct {
	Output    string
	MinVolume int
	MaxVolume int
	Volume    int
	Muted     bool
}

// Input is one selectable external input.
type Input struct {
	URI    string
	Title  string
	Active bool
}

// PlayInfo describes what one output is currently playing.
type PlayInfo struct {
	State        string
	URI          string
	Title        string
	Artist       string
	Album        string
	ThumbnailURL string
}

// VolumeChange is a pushed volume/mute notification.
type VolumeChange struct {
	Output string
	Volume int
	Muted  bool
}

// ContentChange is a pushed playback/input notification.
type ContentChange struct {
	State        string
	URI          string
	Title        string
	Artist       string
	Album        string
	ThumbnailURL string
}

// PowerChange is a pushed power-status notification.
type PowerChange struct {
	Powered bool
}

// NotificationHandlers receives pushed device notifications. Nil handlers
// are skipped. ConnectionLost fires once when the notification channel
// drops for any reason other than an explicit stop.
type NotificationHandlers struct {
	VolumeChanged  func(VolumeChange)
	ContentChanged func(ContentChange)
	PowerChanged   func(PowerChange)
	ConnectionLost func(error)
}

// Transport is the wire protocol a Session drives. Implementations return
// *TransportError for anything that went wrong talking to the device;
// other error types are treated as caller mistakes and are not retried.
type Transport interface {
	// ProbeLiveness checks that the device answers at all. It must be
	// cheap; the reconnect loop calls it before every attempt.
	ProbeLiveness(ctx context.Context) error

	InterfaceInfo(ctx context.Context) (*InterfaceInfo, error)
	SystemInfo(ctx context.Context) (*SystemInfo, error)

	SoundSetting(ctx context.Context, target string) (*SoundSetting, error)
	SetSoundSetting(ctx context.Context, target, value string) error

	VolumeControls(ctx context.Context) ([]VolumeControl, error)
	SetVolume(ctx context.Context, output string, volume int) error
	SetMute(ctx context.Context, output string, muted bool) error

	PowerStatus(ctx context.Context) (bool, error)
	SetPower(ctx context.Context, on bool) error

	Inputs(ctx context.Context) ([]Input, error)
	SelectInput(ctx context.Context, uri string) error

	PlayInfo(ctx context.Context) ([]PlayInfo, error)

	// Raw invokes an arbitrary service method for commands the typed
	// surface does not cover.
	Raw(ctx context.Context, service, method string, params map[string]any) error

	// RegisterNotificationHandlers installs the push handlers used by the
	// next ListenNotifications call.
	RegisterNotificationHandlers(h NotificationHandlers)

	// ListenNotifications blocks reading pushed notifications until ctx is
	// cancelled or the connection drops.
	ListenNotifications(ctx context.Context) error

	// StopNotifications closes the notification channel without firing
	// ConnectionLost.
	StopNotifications(ctx context.Context) error
}
