package billing

import (
	"time"

	"github.com/google/uuid"
)

// Tariff is a provider rate plan with a validity window
type Tariff struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	ActiveFrom  time.Time  `json:"activeFrom"`
	ActiveUntil *time.Time `json:"activeUntil,omitempty"`
}

// IsActiveOn reports whether date falls inside the tariff's active window
func (t *Tariff) IsActiveOn(date time.Time) bool {
	d := dateOf(date)
	if d.Before(dateOf(t.ActiveFrom)) {
		return false
	}
	return t.ActiveUntil == nil || !d.After(dateOf(*t.ActiveUntil))
}
