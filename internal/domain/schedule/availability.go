package schedule

import "iter"

// Span is the [Start, End) range of one active booking.
type Span struct {
	Start Clock
	End   Clock
}

// SlotAvailability is one row of an availability answer.
type SlotAvailability struct {
	Time      Clock `json:"time"`
	Available bool  `json:"available"`
}

// Overlaps is the half-open overlap test: a range ending exactly when another
// starts does not overlap it.
func Overlaps(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && bStart < aEnd
}

// Occupied counts the spans overlapping [start, end). Each active booking
// takes one unit of capacity regardless of its party size.
func Occupied(start, end Clock, booked []Span) int {
	occupied := 0
	for _, b := range booked {
		if Overlaps(start, end, b.Start, b.End) {
			occupied++
		}
	}
	return occupied
}

// Fits reports whether one more booking can take [start, end): the number of
// overlapping bookings must stay below capacity.
func Fits(start, end Clock, booked []Span, capacity int) bool {
	return Occupied(start, end, booked) < capacity
}

// Filter marks each candidate slot available when the overlapping bookings
// leave room for one more. booked must only hold active bookings.
func Filter(slots iter.Seq[Clock], durationMinutes int, booked []Span, capacity int) []SlotAvailability {
	result := make([]SlotAvailability, 0)
	for slot := range slots {
		result = append(result, SlotAvailability{
			Time:      slot,
			Available: Fits(slot, slot.Add(durationMinutes), booked, capacity),
		})
	}
	return result
}
