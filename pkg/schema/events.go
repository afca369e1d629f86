package schema

// Event type constants for the compile event log.
const (
	EventCompileStarted   = "compile_started"
	EventCompileValidated = "compile_validated"
	EventCompileScheduled = "compile_scheduled"
	EventCompileExecuting = "compile_executing"
	EventCompileCompleted = "compile_completed"
	EventCompileFailed    = "compile_failed"
	EventCompileCancelled = "compile_cancelled"
	EventCompileCacheHit  = "compile_cache_hit"
)

// CompileStatus represents the lifecycle state of a single compile pass.
type CompileStatus string

const (
	CompileStatusUnvalidated CompileStatus = "unvalidated"
	CompileStatusValidated   CompileStatus = "validated"
	CompileStatusScheduled   CompileStatus = "scheduled"
	CompileStatusExecuting   CompileStatus = "executing"
	CompileStatusCompiled    CompileStatus = "compiled"
	CompileStatusFailed      CompileStatus = "failed"
	CompileStatusCancelled   CompileStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible from s.
func (s CompileStatus) IsTerminal() bool {
	switch s {
	case CompileStatusCompiled, CompileStatusFailed, CompileStatusCancelled:
		return true
	}
	return false
}
