package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionResponseStored    = "response.stored"
	ActionJobSkipped        = "job.skipped"
	ActionJobEnqueued       = "job.enqueued"
	ActionDispatchRetrying  = "dispatch.retrying"
	ActionDispatchCompleted = "dispatch.completed"
	ActionDispatchFailed    = "dispatch.failed"
	ActionRecoveryCompleted = "recovery.completed"
)

// Audit event categories group related actions.
const (
	CategoryResponse = "formdispatch.response"
	CategoryDispatch = "formdispatch.dispatch"
	CategoryRecovery = "formdispatch.recovery"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceResponse = "response"
	ResourceRun      = "job_run"
	ResourceShard    = "shard"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionResponseStored,
		ActionJobSkipped,
		ActionJobEnqueued,
		ActionDispatchRetrying,
		ActionDispatchCompleted,
		ActionDispatchFailed,
		ActionRecoveryCompleted,
	}
}
