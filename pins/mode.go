package pins

// Mode is the logical electrical configuration of a pin.
type Mode uint8

const (
	Free Mode = iota
	Input
	InputPullup
	Output
	// InputPulldown and OutputOpenDrain are only accepted on boards whose
	// descriptor advertises them.
	InputPulldown
	OutputOpenDrain
)

func (m Mode) String() string {
	switch m {
	case Free:
		return "FREE"
	case Input:
		return "INPUT"
	case InputPullup:
		return "INPUT_PULLUP"
	case Output:
		return "OUTPUT"
	case InputPulldown:
		return "INPUT_PULLDOWN"
	case OutputOpenDrain:
		return "OUTPUT_OPEN_DRAIN"
	default:
		return "UNKNOWN"
	}
}

// IsInput reports whether m is one of the input modes.
func (m Mode) IsInput() bool {
	return m == Input || m == InputPullup || m == InputPulldown
}

// IsOutput reports whether m is one of the output modes.
func (m Mode) IsOutput() bool {
	return m == Output || m == OutputOpenDrain
}
