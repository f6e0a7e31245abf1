// Package notify publishes motion events to external consumers.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// MotionEvent is published on every rising edge of motion.
type MotionEvent struct {
	ID           string    `json:"id"`
	Device       string    `json:"device"`
	DetectedAt   time.Time `json:"detectedAt"`
	ChangedCells int       `json:"changedCells"`
}

func NewMotionEvent(device string, changedCells int, at time.Time) MotionEvent {
	return MotionEvent{
		ID:           uuid.New().String(),
		Device:       device,
		DetectedAt:   at.UTC(),
		ChangedCells: changedCells,
	}
}

type Notifier interface {
	Publish(ev MotionEvent) error
	Close() error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(MotionEvent) error { return nil }
func (Nop) Close() error              { return nil }
