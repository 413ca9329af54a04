package audiocontrol

import "encoding/json"

// rpcRequest is the JSON-RPC frame the Audio Control API expects.
type rpcRequest struct {
	Method  string `json:"method"`
	ID      int64  `json:"id"`
	Params  []any  `json:"params"`
	Version string `json:"version"`
}

// rpcResponse is the reply frame. Error, when present, is a two-element
// array of [code, message].
type rpcResponse struct {
	ID     int64             `json:"id"`
	Result []json.RawMessage `json:"result"`
	Error  []json.RawMessage `json:"error"`
}

type wireInterfaceInfo struct {
	ProductName      string `json:"productName"`
	ProductCategory  string `json:"productCategory"`
	ModelName        string `json:"modelName"`
	ServerName       string `json:"serverName"`
	InterfaceVersion string `json:"interfaceVersion"`
}

type wireSystemInfo struct {
	SerialNumber    string `json:"serialNumber"`
	MACAddr         string `json:"macAddr"`
	WirelessMACAddr string `json:"wirelessMacAddr"`
	Version         string `json:"version"`
}

type wireCandidate struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type wireSoundSetting struct {
	Target       string          `json:"target"`
	CurrentValue string          `json:"currentValue"`
	Candidate    []wireCandidate `json:"candidate"`
}

type wireVolume struct {
	Output    string `json:"output"`
	Volume    int    `json:"volume"`
	MinVolume int    `json:"minVolume"`
	MaxVolume int    `json:"maxVolume"`
	Mute      string `json:"mute"`
}

type wirePowerStatus struct {
	Status string `json:"status"`
}

type wireTerminal struct {
	URI    string `json:"uri"`
	Title  string `json:"title"`
	Active string `json:"active"`
}

type wirePlayInfo struct {
	URI       string `json:"uri"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	AlbumName string `json:"albumName"`
	StateInfo struct {
		State string `json:"state"`
	} `json:"stateInfo"`
	Content struct {
		ThumbnailURL string `json:"thumbnailUrl"`
	} `json:"content"`
}

// notificationRef names one pushed notification stream on a service
// channel, used when enabling notifications after connect.
type notificationRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
