package orders_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campo-vida/order-engine/orders"
)

func standardHours() orders.BusinessHours {
	return orders.BusinessHours{
		OpenHour:      8,
		CloseHour:     18,
		ClosedWeekday: time.Sunday,
		ConfirmDelay:  30 * time.Minute,
		OpeningOffset: 60 * time.Minute,
	}
}

// 2026-08-24 is a Monday.
func monday(hour, min int) time.Time {
	return time.Date(2026, time.August, 24, hour, min, 0, 0, time.UTC)
}

func TestIsOpen_WindowEdges(t *testing.T) {
	h := standardHours()

	assert.False(t, h.IsOpen(monday(7, 59)), "before opening")
	assert.True(t, h.IsOpen(monday(8, 0)), "opening hour is inclusive")
	assert.True(t, h.IsOpen(monday(17, 59)))
	assert.False(t, h.IsOpen(monday(18, 0)), "closing hour is exclusive")
}

func TestIsOpen_ClosedWeekday(t *testing.T) {
	h := standardHours()
	sundayNoon := time.Date(2026, time.August, 23, 12, 0, 0, 0, time.UTC)

	assert.False(t, h.IsOpen(sundayNoon), "midday on the closed day is still closed")
}

func TestNextAutoConfirm_DuringHours_FixedDelay(t *testing.T) {
	h := standardHours()
	placed := monday(10, 0)

	assert.Equal(t, monday(10, 30), h.NextAutoConfirm(placed))
}

func TestNextAutoConfirm_BeforeOpening_SameDay(t *testing.T) {
	// GIVEN: Order placed Monday 06:15, shop opens at 08:00
	// THEN: Auto-confirm at 09:00 (opening plus the offset)

	h := standardHours()
	placed := monday(6, 15)

	assert.Equal(t, monday(9, 0), h.NextAutoConfirm(placed))
}

func TestNextAutoConfirm_AfterClose_NextDay(t *testing.T) {
	h := standardHours()
	placed := monday(20, 0)
	tuesday9 := time.Date(2026, time.August, 25, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, tuesday9, h.NextAutoConfirm(placed))
}

func TestNextAutoConfirm_SkipsClosedWeekday(t *testing.T) {
	// GIVEN: Order placed Saturday evening, Sunday closed
	// THEN: Auto-confirm lands on Monday morning

	h := standardHours()
	saturdayEvening := time.Date(2026, time.August, 22, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, monday(9, 0), h.NextAutoConfirm(saturdayEvening))
}

func TestNextAutoConfirm_OnClosedDay(t *testing.T) {
	h := standardHours()
	sundayMorning := time.Date(2026, time.August, 23, 7, 0, 0, 0, time.UTC)

	// Early Sunday is never "before opening today": the whole day is closed.
	assert.Equal(t, monday(9, 0), h.NextAutoConfirm(sundayMorning))
}
