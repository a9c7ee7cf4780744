package enum

// EventStatus represents the per-event outcome of batch processing.
type EventStatus int

const (
	// EventStatusApplied indicates the event mutated a reputation row.
	EventStatusApplied EventStatus = iota
	// EventStatusRejected indicates the event failed validation and caused no side effects.
	EventStatusRejected
	// EventStatusError indicates persistence failed after validation passed.
	EventStatusError
)

var eventStatusNames = map[EventStatus]string{
	EventStatusApplied:  "applied",
	EventStatusRejected: "rejected",
	EventStatusError:    "error",
}

// String returns the lowercase name of the status.
func (s EventStatus) String() string {
	if name, ok := eventStatusNames[s]; ok {
		return name
	}

	return "unknown"
}

// MarshalText implements encoding.TextMarshaler for JSON responses.
func (s EventStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
