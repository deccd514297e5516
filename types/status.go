package types

// Status represents what the producer's batch assembler is currently doing.
//
// The assembler flips between the two values on every scan cycle:
//
//	StatusProcessing (directory scan) → StatusWaiting (blocked on directory signal)
type Status int32

const (
	// StatusWaiting indicates the assembler is blocked waiting for new files.
	StatusWaiting Status = iota

	// StatusProcessing indicates the assembler is scanning the input directory.
	StatusProcessing
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "Waiting"
	case StatusProcessing:
		return "Processing"
	default:
		return "Unknown"
	}
}

// ParseStatus converts a wire status string back into a Status.
//
// Unknown values map to StatusWaiting and ok=false.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "Waiting":
		return StatusWaiting, true
	case "Processing":
		return StatusProcessing, true
	default:
		return StatusWaiting, false
	}
}
