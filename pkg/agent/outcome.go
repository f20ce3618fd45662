package agent

// Status classifies how handling one inbound event ended. Every path
// through the pipeline lands on exactly one of these; transports ack the
// delivery regardless and use the status for logging and reporting only.
type Status string

const (
	// StatusReplied is the full pipeline: persisted, answered, dispatched.
	StatusReplied Status = "replied"
	// StatusDuplicate means the event id was already admitted. Success,
	// nothing written, no model call.
	StatusDuplicate Status = "duplicate"
	// StatusStoreUnavailable covers persistence failures. When the
	// failure precedes the dedup commit the event id stays retryable.
	StatusStoreUnavailable Status = "store_unavailable"
	// StatusModelTimeout means the model call exceeded its deadline. The
	// inbound message is persisted; no assistant turn exists.
	StatusModelTimeout Status = "model_timeout"
	// StatusModelError is any other model failure, including an empty
	// completion.
	StatusModelError Status = "model_error"
	// StatusOutsideWindow means the reply was persisted but the provider
	// refused the send because the engagement window closed.
	StatusOutsideWindow Status = "outside_window"
	// StatusDispatchFailed means the reply was persisted but the send
	// failed for any other reason.
	StatusDispatchFailed Status = "dispatch_failed"
)

// Outcome reports what one inbound event produced.
type Outcome struct {
	Status       Status
	UserID       int64
	Reply        string // dispatched (or intended) assistant text
	FallbackSent bool   // a static apology went out instead of a reply
	Err          error  // underlying cause for non-replied statuses
}

// Replied reports whether a real assistant turn was persisted and
// dispatched.
func (o Outcome) Replied() bool {
	return o.Status == StatusReplied
}
