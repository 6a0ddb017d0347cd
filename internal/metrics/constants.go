package metrics

const (
	namespace = "socialhub"

	LabelPlatform  = "platform"
	LabelOperation = "operation"
	LabelOutcome   = "outcome"

	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
	OutcomeTimeout      = "timeout"
	OutcomeDeactivated  = "deactivated"
	OutcomeConflict     = "conflict"
)
