package webhooks

// Envelope is a single inbound webhook delivery, exactly as it was received.
type Envelope struct {
	// Body is the raw request body. The signature covers these exact bytes.
	Body []byte
	// Signature is the value of the X-Hub-Signature-256 header.
	Signature string
	// EventType is the value of the X-GitHub-Event header.
	EventType string
	// DeliveryID is the value of the X-GitHub-Delivery header.
	DeliveryID string
}

// EventKind classifies a delivery by the handler responsible for it.
type EventKind int

const (
	// EventKindOther covers every event type that is accepted but not acted
	// upon.
	EventKindOther EventKind = iota
	EventKindIssueComment
	EventKindPullRequest
)

func kindOf(eventType string) EventKind {
	switch eventType {
	case "issue_comment":
		return EventKindIssueComment
	case "pull_request":
		return EventKindPullRequest
	}
	return EventKindOther
}

const (
	StatusCommentProcessed = "comment_processed"
	StatusPRProcessed      = "pr_processed"
	StatusAcknowledged     = "acknowledged"
)

// Outcome reports what became of a delivery that was handled successfully.
type Outcome struct {
	Status string `json:"status"`
	// JobIDs identifies any jobs that were enqueued as a result of the
	// delivery.
	JobIDs []string `json:"jobIDs,omitempty"`
}
