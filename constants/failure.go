package constants

// FailureClass classifies why a filing was dead-lettered.
type FailureClass string

// Stable values (store these exact strings in DB).
const (
	FailureParsing       FailureClass = "parsing"        // every applicable tier rejected the document
	FailureTimeout       FailureClass = "timeout"        // last attempt exceeded the per-attempt budget
	FailureStorage       FailureClass = "storage"        // result persisted nowhere after retry budget
	FailureNetwork       FailureClass = "network"        // byte fetch from the discovery collaborator failed
	FailureUnknownFormat FailureClass = "unknown_format" // unclassifiable document and generic tier failed
)

// AttemptOutcome is the recorded outcome of one parser invocation.
type AttemptOutcome string

const (
	OutcomeSuccess     AttemptOutcome = "success"
	OutcomeRecoverable AttemptOutcome = "recoverable"
	OutcomeFatal       AttemptOutcome = "fatal"
	OutcomeTimeout     AttemptOutcome = "timeout"
)
