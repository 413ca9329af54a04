package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base of every bridge topic.
const TopicPrefix = "avrbridge"

// Topics provides builders for the bridge's MQTT topics. Using these
// helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("avr-1")
//	// Returns: "avrbridge/avr-1/state"
type Topics struct{}

// DeviceState returns the retained state topic for a device.
//
// Example: avrbridge/avr-1/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefix, deviceID)
}

// DeviceAvailability returns the retained availability topic for a device.
//
// Example: avrbridge/avr-1/availability
func (Topics) DeviceAvailability(deviceID string) string {
	return fmt.Sprintf("%s/%s/availability", TopicPrefix, deviceID)
}

// DeviceCommand returns the command intake topic for a device.
//
// Example: avrbridge/avr-1/set
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/set", TopicPrefix, deviceID)
}

// SystemStatus returns the bridge status topic, also used for the LWT.
//
// Example: avrbridge/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllDeviceCommands returns a pattern matching every device command topic.
//
// Pattern: avrbridge/+/set
func (Topics) AllDeviceCommands() string {
	return TopicPrefix + "/+/set"
}

// DeviceIDFromCommandTopic extracts the device ID from a command topic.
// Returns an empty string when the topic does not match the command
// layout.
func DeviceIDFromCommandTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[2] != "set" || parts[1] == "" {
		return ""
	}
	return parts[1]
}
