package mqtt

import "fmt"

// TopicPrefix roots every topic the bridge uses.
const TopicPrefix = "graylogic"

// Topics builds bridge topic names of the form
// graylogic/{category}/{protocol}/{device_id}.
type Topics struct{}

// BridgeState is where retained capability snapshots are published.
func (Topics) BridgeState(protocol, deviceID string) string {
	return bridgeTopic("state", protocol, deviceID)
}

// BridgeCommand carries capability writes to the device.
func (Topics) BridgeCommand(protocol, deviceID string) string {
	return bridgeTopic("command", protocol, deviceID)
}

// BridgeAck carries command acknowledgements.
func (Topics) BridgeAck(protocol, deviceID string) string {
	return bridgeTopic("ack", protocol, deviceID)
}

// BridgeConfig carries settings updates (hostname, name).
func (Topics) BridgeConfig(protocol, deviceID string) string {
	return bridgeTopic("config", protocol, deviceID)
}

// BridgeHealth is the per-protocol health topic.
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// SystemStatus is the online/offline topic for an MQTT client.
func (Topics) SystemStatus(clientID string) string {
	return fmt.Sprintf("%s/system/%s/status", TopicPrefix, clientID)
}

func bridgeTopic(category, protocol, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, category, protocol, deviceID)
}
