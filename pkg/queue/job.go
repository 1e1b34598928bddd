package queue

import (
	"context"
	"encoding/json"
)

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes one message payload. Errors are retried up to the
	// configured limit, then the message moves to the dead letter list.
	Handle(ctx context.Context, payload json.RawMessage) error
}
