package mqtt

import "fmt"

// Topic prefixes for the controller's MQTT surface.
//
// All topics use the flat scheme: autopatch/{category}/{id}. Status and
// result topics are published per unit; commands arrive on a shared
// command branch and responses are keyed by request ID.
const (
	// TopicPrefix is the base for all controller topics.
	TopicPrefix = "autopatch"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "autopatch/system"
)

// Topics provides builders for controller MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.UnitStatus("pip1")
//	// Returns: "autopatch/status/pip1"
type Topics struct{}

// UnitStatus returns the topic for per-unit status updates.
// Published retained so late subscribers see the current state.
//
// Example: autopatch/status/pip1
func (Topics) UnitStatus(unitID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, unitID)
}

// Result returns the topic for completed attempt results from a unit.
//
// Example: autopatch/result/pip1
func (Topics) Result(unitID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefix, unitID)
}

// Command returns the topic for a specific command action.
//
// Example: autopatch/command/add_target
func (Topics) Command(action string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, action)
}

// Response returns the topic for command responses, keyed by request ID.
//
// Example: autopatch/response/req-abc123
func (Topics) Response(requestID string) string {
	return fmt.Sprintf("%s/response/%s", TopicPrefix, requestID)
}

// SystemStatus returns the controller online/offline status topic.
// This is also the LWT topic.
//
// Example: autopatch/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllUnitStatus returns a pattern matching all unit status topics.
//
// Pattern: autopatch/status/+
func (Topics) AllUnitStatus() string {
	return fmt.Sprintf("%s/status/+", TopicPrefix)
}

// AllResults returns a pattern matching all attempt result topics.
//
// Pattern: autopatch/result/+
func (Topics) AllResults() string {
	return fmt.Sprintf("%s/result/+", TopicPrefix)
}

// AllCommands returns a pattern matching all command topics.
//
// Pattern: autopatch/command/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllTopics returns a pattern matching all controller topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: autopatch/#
func (Topics) AllTopics() string {
	return "autopatch/#"
}
