// Package notify delivers human-facing alert notifications. It formats
// alert messages and publishes them through a pluggable channel.
package notify

import (
	"context"
	"fmt"
)

// Notifier is the notification channel presented to the pipeline.
type Notifier interface {
	// Publish delivers one notification.
	Publish(ctx context.Context, subject, body string) error
}

// Message carries the fields rendered into an operator notification.
type Message struct {
	AlertType   string
	Priority    string
	Description string
	LocID       string
	EventID     string
	Timestamp   string
}

// recommendedActions maps alert types to the operator playbook entry.
var recommendedActions = map[string]string{
	"High Temperature": "Increase irrigation frequency and check cooling systems",
	"Low Temperature":  "Check heating systems and frost protection",
	"Low Water Level":  "Inspect irrigation system and water supply",
	"High Water Level": "Check drainage systems and reduce irrigation",
	"Soil pH Warning":  "Test soil samples and adjust pH levels as needed",
	"Low Nutrient":     "Schedule fertilizer application and soil testing",
	"Sensor Failure":   "Immediate sensor inspection and replacement required",
}

const fallbackAction = "Investigate the issue and contact technical support"

// RecommendedAction returns the playbook entry for an alert type, or the
// generic fallback for unmapped types.
func RecommendedAction(alertType string) string {
	if action, ok := recommendedActions[alertType]; ok {
		return action
	}
	return fallbackAction
}

// Subject renders the notification subject line, encoding priority, type
// and location.
func (m Message) Subject() string {
	return fmt.Sprintf("[%s] %s @ %s", m.Priority, m.AlertType, m.LocID)
}

// Body renders the structured human-readable notification body.
func (m Message) Body() string {
	return fmt.Sprintf(
		"Farm IoT Alert Notification\n\n"+
			"Location: %s\n"+
			"Timestamp: %s\n"+
			"Alert Type: %s\n"+
			"Priority: %s\n"+
			"Description: %s\n\n"+
			"Recommended Action: %s\n\n"+
			"Event ID: %s\n"+
			"Generated by Farm Monitoring System",
		m.LocID, m.Timestamp, m.AlertType, m.Priority, m.Description,
		RecommendedAction(m.AlertType), m.EventID,
	)
}
