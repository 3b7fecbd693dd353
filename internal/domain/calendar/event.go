// Package calendar holds school calendar events.
package calendar

import "time"

// Event is one calendar entry. Start and End are absolute instants; the
// store does not enforce Start <= End.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Category    string    `json:"category"`
	Location    string    `json:"location"`
}

// Duration is End-Start, zero when the range is inverted.
func (e Event) Duration() time.Duration {
	if e.End.Before(e.Start) {
		return 0
	}
	return e.End.Sub(e.Start)
}
