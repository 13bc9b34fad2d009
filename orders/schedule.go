/*
schedule.go - Business hours and the auto-confirm clock

PURPOSE:
  Pure time arithmetic: when should a pending order that needs no manual
  approval auto-advance to confirmed? Inside business hours, after a short
  fixed delay; outside them (or on the weekly closed day), at the next
  opening hour plus an offset.

  The same window also backs the accepting-orders gate that the API layer
  evaluates before admission runs.

SEE ALSO:
  - api/scheduler.go: Background loop that acts on the computed timestamps
  - admission.go: Stamps AutoConfirmAt on unheld orders
*/
package orders

import "time"

// BusinessHours configures the accepting window and auto-confirm timing.
type BusinessHours struct {
	OpenHour  int // inclusive, 24h clock
	CloseHour int // exclusive

	// ClosedWeekday is the one day of the week the shop does not operate.
	ClosedWeekday time.Weekday

	// ConfirmDelay applies when the order lands inside business hours.
	ConfirmDelay time.Duration

	// OpeningOffset applies on top of the next opening hour otherwise.
	OpeningOffset time.Duration
}

// IsOpen reports whether orders are being accepted at t.
func (b BusinessHours) IsOpen(t time.Time) bool {
	if t.Weekday() == b.ClosedWeekday {
		return false
	}
	h := t.Hour()
	return h >= b.OpenHour && h < b.CloseHour
}

// NextAutoConfirm computes when a non-held order placed at now should
// auto-advance to confirmed.
func (b BusinessHours) NextAutoConfirm(now time.Time) time.Time {
	if b.IsOpen(now) {
		return now.Add(b.ConfirmDelay)
	}
	return b.nextOpening(now).Add(b.OpeningOffset)
}

// nextOpening returns the next opening hour strictly usable from now: same
// day if the shop has not opened yet, otherwise the next operating day.
func (b BusinessHours) nextOpening(now time.Time) time.Time {
	day := now
	if now.Weekday() != b.ClosedWeekday && now.Hour() < b.OpenHour {
		return openingOn(day, b.OpenHour)
	}
	for {
		day = day.AddDate(0, 0, 1)
		if day.Weekday() != b.ClosedWeekday {
			return openingOn(day, b.OpenHour)
		}
	}
}

func openingOn(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}
