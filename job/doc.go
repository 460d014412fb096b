// Package job defines what gets sent to a job queue and how each job type
// is configured.
//
// # Specs and run objects
//
// A form declares its jobs as a list of [Spec] values (a name plus opaque
// parameters). For every stored response the dispatcher turns each spec
// into a [RunObject]: an immutable snapshot of the job, the form, and the
// response, identified by "<responseId>:<jobName>". The identifier is the
// same on every attempt for the same pair, so queues that honour it as an
// idempotency key never hold two copies.
//
// # Configs
//
// Every allowed job type carries a [Config] naming its broker and the retry,
// backoff, and timeout options the broker applies once the job is accepted.
// Load configs at startup with [LoadConfigs]:
//
//	configs, err := job.LoadConfigs([]string{"email", "webhook"}, raw)
//
// A job name on a form that has no config is an unknown job: it is skipped
// with a warning and never retried.
package job
