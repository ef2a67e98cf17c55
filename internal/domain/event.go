package domain

import (
	"encoding/json"
	"time"
)

// RawEventStatus is the lifecycle state of an inbound webhook payload.
type RawEventStatus string

const (
	StatusReceived         RawEventStatus = "received"
	StatusForwarded        RawEventStatus = "forwarded"
	StatusForwardingFailed RawEventStatus = "forwarding_failed"
	StatusProcessed        RawEventStatus = "processed"
	StatusProcessingFailed RawEventStatus = "processing_failed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s RawEventStatus) Valid() bool {
	switch s {
	case StatusReceived, StatusForwarded, StatusForwardingFailed, StatusProcessed, StatusProcessingFailed:
		return true
	}
	return false
}

// RawEvent is the audit record of a webhook exactly as it was received.
// The ID is minted by the database on first insert and never changes.
type RawEvent struct {
	ID             int64           `json:"id"`
	Payload        json.RawMessage `json:"payload"`
	PlatformFamily string          `json:"platform_family"`
	Platform       string          `json:"platform"`
	Status         RawEventStatus  `json:"status"`
	Attempts       int             `json:"attempts"`
	LastError      *string         `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
