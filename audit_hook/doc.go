// Package audithook is a formdispatch extension that turns dispatch
// lifecycle events into audit records.
//
// Every response and dispatch hook emits a structured [AuditEvent] through
// the [Recorder] interface, with a severity of info for normal operation,
// warning for retries and skipped jobs, and critical for exhausted
// dispatches. [LogRecorder] writes the events to a slog logger; any other
// audit backend plugs in through [RecorderFunc].
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionDispatchFailed,
//	        audithook.ActionRecoveryCompleted,
//	    ),
//	)
package audithook
