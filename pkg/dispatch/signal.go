package dispatch

// Signal is the control value returned by filters and handlers.
type Signal int

const (
	// Continue proceeds normally.
	Continue Signal = iota
	// Halt aborts processing of the event: no further filters or handlers,
	// and no after-filters.
	Halt
	// Pass treats the current filter or handler as if it had not matched so
	// that the next candidate gets a chance.
	Pass
)

func (s Signal) String() string {
	switch s {
	case Continue:
		return "continue"
	case Halt:
		return "halt"
	case Pass:
		return "pass"
	default:
		return "unknown"
	}
}
