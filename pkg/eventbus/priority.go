package eventbus

import "strconv"

// Priority orders listeners. Lower values run first; listeners with equal
// priority run in registration order.
type Priority int16

// Conventional priorities. Any int16 value is valid.
const (
	PriorityFirst  Priority = -64
	PriorityEarly  Priority = -32
	PriorityNormal Priority = 0
	PriorityLate   Priority = 32
	PriorityLast   Priority = 64
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityFirst:
		return "first"
	case PriorityEarly:
		return "early"
	case PriorityNormal:
		return "normal"
	case PriorityLate:
		return "late"
	case PriorityLast:
		return "last"
	default:
		return strconv.Itoa(int(p))
	}
}
