package models

import (
	"time"

	id "plinth/pkg/domain"
)

// LogStatus classifies a deployment log entry.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
	LogInfo    LogStatus = "info"
)

// DeploymentLogEntry is an append-only record of a lifecycle attempt
// (verification, deploy, certificate change). Entries are never mutated or
// deleted; the history outlives the attempts it describes.
type DeploymentLogEntry struct {
	ID        id.LogEntryID `json:"id"`
	DomainID  id.DomainID   `json:"domainId"`
	Status    LogStatus     `json:"status"`
	Message   string        `json:"message"`
	Details   string        `json:"details,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewLogEntry builds a log entry stamped at now.
func NewLogEntry(entryID id.LogEntryID, domainID id.DomainID, status LogStatus, message, details string, now time.Time) DeploymentLogEntry {
	return DeploymentLogEntry{
		ID:        entryID,
		DomainID:  domainID,
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: now,
	}
}
