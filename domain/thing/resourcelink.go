package thing

import (
	"context"

	"github.com/R3E-Network/splot/domain/value"
)

// ListenerFunc receives a resource's new value whenever it changes.
type ListenerFunc func(ctx context.Context, newValue value.Value)

// ListenerHandle identifies a registered listener so it can be removed.
type ListenerHandle uint64

// Executor runs a listener callback, decoupling the caller that detected a
// change from the goroutine/queue that delivers it (spec §9's "listener
// callbacks... model with asynchronous tasks").
type Executor interface {
	Run(fn func())
}

// InlineExecutor runs callbacks synchronously on the calling goroutine.
// Useful for tests and for single-threaded embedding.
type InlineExecutor struct{}

func (InlineExecutor) Run(fn func()) { fn() }

// GoExecutor runs each callback on its own goroutine.
type GoExecutor struct{}

func (GoExecutor) Run(fn func()) { go fn() }

// ResourceLink is an observable, writable handle on a value addressed by
// URI: a property link (one PropertyKey on a Thing), a section link (a
// whole section, collapsed to/from "<section>/<trait>/<prop>" keys), or a
// native-URI link that round-trips through a RestClient.
type ResourceLink interface {
	// Fetch retrieves the current value.
	Fetch(ctx context.Context) (value.Value, error)

	// Invoke writes a new value (nil means "no payload", e.g. toggling a
	// method-backed resource). A nil error does not imply the value was
	// necessarily accepted verbatim — transitions may still be in flight.
	Invoke(ctx context.Context, v *value.Value) error

	// RegisterListener subscribes fn to future changes, delivered via exec.
	RegisterListener(exec Executor, fn ListenerFunc) ListenerHandle

	// UnregisterListener removes a previously registered listener.
	UnregisterListener(handle ListenerHandle)
}

// listenerSet is embedded by ResourceLink implementations to provide the
// register/unregister/notify mechanics.
type listenerSet struct {
	next      uint64
	listeners map[ListenerHandle]struct {
		exec Executor
		fn   ListenerFunc
	}
}

func newListenerSet() listenerSet {
	return listenerSet{listeners: make(map[ListenerHandle]struct {
		exec Executor
		fn   ListenerFunc
	})}
}

func (ls *listenerSet) register(exec Executor, fn ListenerFunc) ListenerHandle {
	ls.next++
	h := ListenerHandle(ls.next)
	ls.listeners[h] = struct {
		exec Executor
		fn   ListenerFunc
	}{exec: exec, fn: fn}
	return h
}

func (ls *listenerSet) unregister(h ListenerHandle) {
	delete(ls.listeners, h)
}

func (ls *listenerSet) notify(ctx context.Context, v value.Value) {
	for _, l := range ls.listeners {
		l := l
		l.exec.Run(func() { l.fn(ctx, v) })
	}
}

// RestClient performs HTTP-like methods against a URI, the collaborator a
// native-URI ResourceLink delegates to (spec §1). GET fetches, PUT/POST
// invoke with a body.
type RestClient interface {
	Get(ctx context.Context, uri string) (value.Value, error)
	Put(ctx context.Context, uri string, body value.Value) error
	Post(ctx context.Context, uri string, body value.Value) error
}

// ResourceLinkManager resolves a URI to a ResourceLink.
type ResourceLinkManager interface {
	Resolve(ctx context.Context, uri string) (ResourceLink, error)
}
