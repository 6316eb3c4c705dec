package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// changeEvent is one primitive lifecycle notification delivered to change
// feed subscribers.
type changeEvent struct {
	Kind  string    `json:"kind"` // "pmgr", "rmgr", or "tmgr"
	ID    string    `json:"id"`
	Event string    `json:"event"` // "created", "deleted", "disabled"
	At    time.Time `json:"at"`
}

// changeFeed fans out primitive lifecycle events to every connected
// websocket subscriber. Publish never blocks on a slow subscriber: a full
// subscriber channel drops the event rather than stalling the publisher.
type changeFeed struct {
	mu          sync.Mutex
	subscribers map[chan changeEvent]struct{}
	events      chan changeEvent
	done        chan struct{}
}

func newChangeFeed() *changeFeed {
	return &changeFeed{
		subscribers: make(map[chan changeEvent]struct{}),
		events:      make(chan changeEvent, 256),
		done:        make(chan struct{}),
	}
}

// run pumps published events out to subscribers until ctx is done or stop
// is called.
func (f *changeFeed) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case evt := <-f.events:
			f.mu.Lock()
			for sub := range f.subscribers {
				select {
				case sub <- evt:
				default:
				}
			}
			f.mu.Unlock()
		}
	}
}

func (f *changeFeed) stop() {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
}

func (f *changeFeed) publish(evt changeEvent) {
	evt.At = time.Now()
	select {
	case f.events <- evt:
	default:
	}
}

func (f *changeFeed) subscribe() chan changeEvent {
	ch := make(chan changeEvent, 32)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *changeFeed) unsubscribe(ch chan changeEvent) {
	f.mu.Lock()
	delete(f.subscribers, ch)
	f.mu.Unlock()
	close(ch)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleChangeFeed upgrades to a websocket and streams changeEvents to the
// caller until the connection closes.
func (s *Service) handleChangeFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.WithContext(r.Context()).WithError(err).Error("change feed upgrade failed")
		}
		return
	}
	defer conn.Close()

	sub := s.feed.subscribe()
	defer s.feed.unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
