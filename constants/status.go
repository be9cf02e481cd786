package constants

// ProcessingState is the canonical per-filing state driven by the tiered processor.
type ProcessingState string

// Stable values (store these exact strings in DB).
const (
	StateReceived     ProcessingState = "RECEIVED"      // accepted from discovery, not yet classified
	StateDetecting    ProcessingState = "DETECTING"     // format detection in progress
	StateParsing      ProcessingState = "PARSING"       // tier loop running
	StateSucceeded    ProcessingState = "SUCCEEDED"     // terminal: result persisted
	StateExhausted    ProcessingState = "EXHAUSTED"     // all applicable tiers failed
	StateDeadLettered ProcessingState = "DEAD_LETTERED" // terminal: failure record persisted
)

// Terminal reports whether no further transitions are possible from s.
func (s ProcessingState) Terminal() bool {
	return s == StateSucceeded || s == StateDeadLettered
}
