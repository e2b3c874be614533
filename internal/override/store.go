package override

import "context"

// Store durably persists the whole contact→override map as one document
// and fans out change notifications so concurrently open sessions converge.
//
// Absent entries mean "use provider status".
type Store interface {
	Load(ctx context.Context) (map[string]string, error)

	// Save replaces the document and notifies watchers.
	Save(ctx context.Context, overrides map[string]string) error

	// Watch invokes fn with the freshly loaded map every time another
	// session saves. It blocks until ctx is cancelled.
	Watch(ctx context.Context, fn func(map[string]string)) error
}
