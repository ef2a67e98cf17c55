package domain

import (
	"time"
)

// DeadLetter records a message the dispatcher gave up on. The stream entry
// has been acknowledged; the row is the only trace left for operators.
type DeadLetter struct {
	ID             int64      `json:"id"`
	RawEventID     *int64     `json:"raw_event_id,omitempty"`
	StreamID       string     `json:"stream_id"`
	PlatformFamily string     `json:"platform_family"`
	Platform       string     `json:"platform"`
	Reason         string     `json:"reason"`
	Attempts       int        `json:"attempts"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
}
