package app

// StopReason says why a run ended.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopDuration   StopReason = "duration_elapsed"
	StopInterrupt  StopReason = "interrupted"
	StopFatalError StopReason = "fatal_error"
)
