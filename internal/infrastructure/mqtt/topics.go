package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the IoT system.
//
// Device topics use the scheme iot/devices/{code}/{kind}, where kind is
// "command" (core to device) or "status" (device to core).
const (
	// TopicPrefix is the root of every topic this service uses.
	TopicPrefix = "iot"

	// TopicPrefixDevices is the base for per-device topics.
	TopicPrefixDevices = "iot/devices"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "iot/system"

	// TopicPrefixEvents is the base for domain events mirrored to the broker.
	TopicPrefixEvents = "iot/events"
)

// Topics provides builders for IoT system MQTT topics.
//
//	topics := mqtt.Topics{}
//	cmd := topics.DeviceCommand("DVC00001")
//	// Returns: "iot/devices/DVC00001/command"
type Topics struct{}

// DeviceCommand returns the topic commands for a device are published on.
//
// Example: iot/devices/DVC00001/command
func (Topics) DeviceCommand(code string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevices, code)
}

// DeviceStatus returns the topic a device reports its status on.
//
// Example: iot/devices/DVC00001/status
func (Topics) DeviceStatus(code string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevices, code)
}

// Event returns the topic for a domain event type.
//
// Example: iot/events/device.updated
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvents, eventType)
}

// SystemStatus returns the topic for the service's online/offline status.
// The LWT publishes "offline" here.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllDeviceStatuses returns a wildcard subscription for every device's
// status reports.
func (Topics) AllDeviceStatuses() string {
	return TopicPrefixDevices + "/+/status"
}

// AllDeviceCommands returns a wildcard subscription for every device command.
func (Topics) AllDeviceCommands() string {
	return TopicPrefixDevices + "/+/command"
}

// AllTopics returns a wildcard subscription for all IoT system topics.
// Use for debugging only.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// DeviceCodeFromTopic extracts the device code from a device topic of
// the given kind ("status" or "command").
func DeviceCodeFromTopic(topic, kind string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixDevices+"/")
	if !ok {
		return "", false
	}
	code, suffix, ok := strings.Cut(rest, "/")
	if !ok || suffix != kind || code == "" || strings.ContainsAny(code, "+#") {
		return "", false
	}
	return code, true
}
