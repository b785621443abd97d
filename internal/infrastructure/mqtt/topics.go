package mqtt

import "fmt"

// Topic prefixes for the AstroHub MQTT export surface.
//
// The hub is publish-mostly: device state and events flow out to external
// consumers (observatory dashboards, alerting, home automation). The only
// inbound topic is the system shutdown signal.
const (
	// TopicPrefix is the base for all AstroHub topics.
	TopicPrefix = "astrohub"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "astrohub/system"
)

// Topics provides builders for AstroHub MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("obs1:11111:telescope:0")
//	// Returns: "astrohub/device/obs1:11111:telescope:0/state"
type Topics struct{}

// DeviceState returns the retained state topic for a device.
//
// Example: astrohub/device/obs1:11111:telescope:0/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, deviceID)
}

// DeviceProperty returns the topic for a single property change.
//
// Example: astrohub/device/obs1:11111:focuser:0/property/position
func (Topics) DeviceProperty(deviceID string, property string) string {
	return fmt.Sprintf("%s/device/%s/property/%s", TopicPrefix, deviceID, property)
}

// Event returns the topic for hub events.
//
// Example: astrohub/event/device.connection_changed
func (Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// DiscoveryServers returns the topic carrying the current server list
// after each discovery pass.
//
// Example: astrohub/discovery/servers
func (Topics) DiscoveryServers() string {
	return fmt.Sprintf("%s/discovery/servers", TopicPrefix)
}

// SystemStatus returns the system status topic.
//
// Example: astrohub/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: astrohub/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllDeviceStates returns a pattern matching all device state topics.
//
// Pattern: astrohub/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/device/+/state", TopicPrefix)
}

// AllDeviceProperties returns a pattern matching all property topics.
//
// Pattern: astrohub/device/+/property/+
func (Topics) AllDeviceProperties() string {
	return fmt.Sprintf("%s/device/+/property/+", TopicPrefix)
}

// AllEvents returns a pattern matching all hub events.
//
// Pattern: astrohub/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllTopics returns a pattern matching all AstroHub topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: astrohub/#
func (Topics) AllTopics() string {
	return "astrohub/#"
}
