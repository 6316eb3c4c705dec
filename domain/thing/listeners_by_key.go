package thing

import (
	"context"
	"sync"

	"github.com/R3E-Network/splot/domain/value"
)

// listenerSetByKey fans out property-change notifications to listeners
// registered against a specific PropertyKey, the mechanism RegisterProperty
// Listener/UnregisterPropertyListener on Thing build on.
type listenerSetByKey struct {
	mu   sync.Mutex
	sets map[string]*listenerSet
}

func newListenerSetByKey() listenerSetByKey {
	return listenerSetByKey{sets: make(map[string]*listenerSet)}
}

func (l *listenerSetByKey) register(key PropertyKey, exec Executor, fn ListenerFunc) ListenerHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key.String()
	set, ok := l.sets[k]
	if !ok {
		s := newListenerSet()
		set = &s
		l.sets[k] = set
	}
	return set.register(exec, fn)
}

func (l *listenerSetByKey) unregister(key PropertyKey, h ListenerHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if set, ok := l.sets[key.String()]; ok {
		set.unregister(h)
	}
}

func (l *listenerSetByKey) notify(key PropertyKey, v value.Value) {
	l.mu.Lock()
	set, ok := l.sets[key.String()]
	l.mu.Unlock()
	if !ok {
		return
	}
	set.notify(context.Background(), v)
}
