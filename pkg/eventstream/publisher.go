package eventstream

import "context"

// Publisher publishes document lifecycle events to an event stream backend.
type Publisher interface {
	PublishDocumentIngested(ctx context.Context, event *DocumentIngestedEvent) error
	PublishDocumentDeleted(ctx context.Context, event *DocumentDeletedEvent) error
	Close() error
}
