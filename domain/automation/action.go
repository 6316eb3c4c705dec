package automation

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
	"github.com/R3E-Network/splot/infrastructure/logging"
)

// SyncMode governs how the dispatcher sequences one action relative to the
// next (spec §4.2).
type SyncMode int

const (
	SyncAsync       SyncMode = 0
	SyncWait        SyncMode = 1
	SyncStopOnError SyncMode = 2
)

// Action keys on the wire: p=path, m=method, b=body, ct=content-format,
// s=skip, y=sync, desc=description. "y" (not "b") carries sync mode,
// resolving the PARAM_ACTION_SYNC/PARAM_ACTION_BODY key collision noted
// in the design notes.
type Action struct {
	Path        string
	Method      string // default POST
	Body        value.Value
	HasBody     bool
	ContentType string
	Skip        bool
	Sync        SyncMode
	Description string
}

// RestCaller performs the REST call an Action describes. It is the thin
// seam between the dispatcher and the technology's transport.
type RestCaller interface {
	Call(ctx context.Context, method, path string, body value.Value, hasBody bool) error
}

// Dispatcher walks an ordered action list honoring each entry's sync mode,
// serializes overlapping invocations of the same primitive (coalescing a
// second trigger into at most one pending re-invoke), and tracks the
// invocation count and last-fired time (spec §4.2).
type Dispatcher struct {
	caller RestCaller
	mgr    thing.ResourceLinkManager
	log    *logging.Logger

	mu        sync.Mutex
	running   bool
	pending   bool
	pendingFn func()

	count       int64
	lastFiredAt time.Time
}

// NewDispatcher builds a Dispatcher that issues REST calls through caller,
// resolving same-origin relative action paths through mgr first (mirroring
// what thing.Registry.Resolve does for Pairing/Rule resource links) and
// falling back to caller for absolute/remote URIs and for paths mgr cannot
// resolve. mgr may be nil if
// this dispatcher never addresses local things (e.g. in tests).
func NewDispatcher(caller RestCaller, mgr thing.ResourceLinkManager, log *logging.Logger) *Dispatcher {
	return &Dispatcher{caller: caller, mgr: mgr, log: log}
}

// Count returns how many times Dispatch has begun an invocation.
func (d *Dispatcher) Count() int64 { return atomic.LoadInt64(&d.count) }

// LastFiredAt returns the start time of the most recent invocation.
func (d *Dispatcher) LastFiredAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastFiredAt
}

// ResetCount zeroes the invocation counter (spec §3: "count" is volatile
// and reset explicitly via a property write).
func (d *Dispatcher) ResetCount() { atomic.StoreInt64(&d.count, 0) }

// Dispatch runs actions in order. If an invocation is already running, this
// call is coalesced: at most one pending re-invoke is queued, and when the
// in-flight run finishes it starts exactly one more pass over actions.
func (d *Dispatcher) Dispatch(ctx context.Context, actions []Action) {
	d.mu.Lock()
	if d.running {
		d.pending = true
		d.pendingFn = func() { d.runOnce(ctx, actions) }
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.runOnce(ctx, actions)

	for {
		d.mu.Lock()
		if !d.pending {
			d.running = false
			d.mu.Unlock()
			return
		}
		fn := d.pendingFn
		d.pending = false
		d.pendingFn = nil
		d.mu.Unlock()
		fn()
	}
}

func (d *Dispatcher) runOnce(ctx context.Context, actions []Action) {
	atomic.AddInt64(&d.count, 1)
	d.mu.Lock()
	d.lastFiredAt = time.Now()
	d.mu.Unlock()

	for _, a := range actions {
		if a.Skip {
			continue
		}
		method := a.Method
		if method == "" {
			method = "POST"
		}

		switch a.Sync {
		case SyncAsync:
			go d.call(ctx, method, a)

		case SyncWait:
			if err := d.invoke(ctx, method, a); err != nil {
				d.logFailure(a, err)
			}

		case SyncStopOnError:
			if err := d.invoke(ctx, method, a); err != nil {
				d.logFailure(a, err)
				return
			}
		}
	}
}

func (d *Dispatcher) call(ctx context.Context, method string, a Action) {
	if err := d.invoke(ctx, method, a); err != nil {
		d.logFailure(a, err)
	}
}

// invoke resolves a.Path through mgr when it is a same-origin relative path
// (no URL scheme), dispatching straight to the resolved ResourceLink;
// anything carrying a scheme (an absolute/remote URI, or no mgr at all),
// and any relative path mgr fails to resolve, goes out through caller
// instead (spec §4.2, §8 scenario d).
func (d *Dispatcher) invoke(ctx context.Context, method string, a Action) error {
	if d.mgr != nil && !hasScheme(a.Path) {
		if link, err := d.mgr.Resolve(ctx, a.Path); err == nil {
			var body *value.Value
			if a.HasBody {
				b := a.Body
				body = &b
			}
			return link.Invoke(ctx, body)
		}
	}
	return d.caller.Call(ctx, method, a.Path, a.Body, a.HasBody)
}

func hasScheme(path string) bool {
	u, err := url.Parse(path)
	return err == nil && u.Scheme != ""
}

func (d *Dispatcher) logFailure(a Action, err error) {
	if d.log == nil {
		return
	}
	d.log.WithError(err).WithField("path", a.Path).WithField("method", a.Method).
		Warn("action dispatch failed")
}

// ValidateActions rejects an action list containing an unknown sync mode
// before it reaches the dispatcher, surfacing as InvalidPropertyValue on
// the owning primitive's action-list write.
func ValidateActions(actions []Action) error {
	for _, a := range actions {
		switch a.Sync {
		case SyncAsync, SyncWait, SyncStopOnError:
		default:
			return errors.InvalidPropertyValue("s/actn/al", errors.Conflict("unknown sync mode"))
		}
	}
	return nil
}
