package registry

// EventKind discriminates registry lifecycle notifications.
type EventKind string

const (
	// EventLoaded fires when a definition enters the index from disk,
	// during the startup scan or a watcher reload.
	EventLoaded EventKind = "loaded"
	// EventSaved fires after an explicit save is durably written.
	EventSaved EventKind = "saved"
	// EventDeleted fires after a definition leaves the index.
	EventDeleted EventKind = "deleted"
)

// Event is a registry lifecycle notification.
type Event struct {
	Kind EventKind
	ID   int64
	Name string
	Path string
}

// Publisher receives lifecycle events. Delivery is fire-and-forget: the
// registry never lets a publisher failure affect its own state.
type Publisher interface {
	Publish(event Event)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(event Event) { f(event) }

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
