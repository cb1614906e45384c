package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. Every topic the service publishes or subscribes to lives
// under TopicPrefix:
//
//	enteliweb/system/status                             service online/offline (retained, LWT)
//	enteliweb/system/health                             periodic service health (retained)
//	enteliweb/task/{kind}/{run_id}                      async task transitions
//	enteliweb/state/{site}/{device}/{object}/{property} sampled property values (retained)
//	enteliweb/command/{name}                            on-demand job triggers
const (
	TopicPrefix = "enteliweb"

	TopicPrefixSystem  = TopicPrefix + "/system"
	TopicPrefixTask    = TopicPrefix + "/task"
	TopicPrefixState   = TopicPrefix + "/state"
	TopicPrefixCommand = TopicPrefix + "/command"
)

// Topics provides builders for the service's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.PropertyState("Main", "100", "AV1", "present-value")
//	// Returns: "enteliweb/state/Main/100/AV1/present-value"
type Topics struct{}

// SystemStatus returns the retained service status topic, also used as the
// Last Will topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// SystemHealth returns the retained periodic health topic.
func (Topics) SystemHealth() string {
	return TopicPrefixSystem + "/health"
}

// Task returns the topic for transitions of one workflow run.
//
// Example: enteliweb/task/save_database/6f1c...
func (Topics) Task(kind, runID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixTask, Segment(kind), Segment(runID))
}

// PropertyState returns the retained topic for one sampled property value.
// Property paths such as "priority-array/8" become one level.
func (Topics) PropertyState(site, device, objectID, property string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", TopicPrefixState,
		Segment(site), Segment(device), Segment(objectID), Segment(property))
}

// Command returns the topic for one named command.
//
// Example: enteliweb/command/backup
func (Topics) Command(name string) string {
	return TopicPrefixCommand + "/" + Segment(name)
}

// AllCommands matches every command topic.
func (Topics) AllCommands() string {
	return TopicPrefixCommand + "/+"
}

// AllTasks matches every task transition topic.
func (Topics) AllTasks() string {
	return TopicPrefixTask + "/#"
}

// CommandName returns the command name of a topic built by Command, or ""
// when topic is not a command topic.
func (Topics) CommandName(topic string) string {
	name, ok := strings.CutPrefix(topic, TopicPrefixCommand+"/")
	if !ok || strings.Contains(name, "/") {
		return ""
	}
	return name
}

var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Segment makes s safe as a single topic level: level separators and
// wildcards become "_", and an empty string becomes "_".
func Segment(s string) string {
	if s == "" {
		return "_"
	}
	return segmentReplacer.Replace(s)
}
