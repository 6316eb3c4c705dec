package automation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// Pairing mirrors a value between a source and destination ResourceLink,
// optionally applying an SAE transform in each direction (spec §4.3).
type Pairing struct {
	mu sync.Mutex

	sourceURI, destURI string
	source, dest       thing.ResourceLink

	push, pull bool
	forward    *Program
	reverse    *Program

	// lastSource/lastDest track each direction's previous observed value,
	// bound into Context.VL the same way Rule's cond.last/cond.curr does,
	// so a transform reading v_l sees the value before this change (spec
	// §4.3). Enable seeds both from each link's value at that moment.
	lastSource value.Value
	lastDest   value.Value

	enabled bool

	sourceListener, destListener       thing.ListenerHandle
	hasSourceListener, hasDestListener bool

	// suppressForward/suppressReverse prevent a write this pairing itself produced from being
	// re-read as a new change on the opposite direction (spec §4.3's
	// reentrancy requirement). One flag per direction: a write in flight on
	// that direction marks it so the resulting listener callback is
	// swallowed rather than re-propagated.
	suppressForward int32
	suppressReverse int32
}

// PairingConfig constructs a Pairing's static configuration; resolution of
// source/dest into ResourceLinks happens in Enable.
type PairingConfig struct {
	SourceURI      string
	DestURI        string
	Push, Pull     bool
	ForwardXform   string // SAE source, identity if empty
	ReverseXform   string // SAE source, identity if empty
}

// NewPairing compiles the configured transforms and returns a disabled
// Pairing. An empty transform source compiles to a no-op identity program.
func NewPairing(cfg PairingConfig) (*Pairing, error) {
	fwd, err := compileOrIdentity(cfg.ForwardXform)
	if err != nil {
		return nil, errors.InvalidPropertyValue("s/pair/fwd", err)
	}
	rev, err := compileOrIdentity(cfg.ReverseXform)
	if err != nil {
		return nil, errors.InvalidPropertyValue("s/pair/rev", err)
	}
	return &Pairing{
		sourceURI:  cfg.SourceURI,
		destURI:    cfg.DestURI,
		push:       cfg.Push,
		pull:       cfg.Pull,
		forward:    fwd,
		reverse:    rev,
		lastSource: value.Null(),
		lastDest:   value.Null(),
	}, nil
}

func compileOrIdentity(source string) (*Program, error) {
	if source == "" {
		return &Program{Source: ""}, nil
	}
	return Compile(source)
}

// Enable resolves both URIs through mgr and installs listeners for the
// configured push/pull directions.
func (p *Pairing) Enable(ctx context.Context, mgr thing.ResourceLinkManager, exec thing.Executor) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled {
		return nil
	}

	source, err := mgr.Resolve(ctx, p.sourceURI)
	if err != nil {
		return err
	}
	dest, err := mgr.Resolve(ctx, p.destURI)
	if err != nil {
		return err
	}
	p.source = source
	p.dest = dest
	if v, err := source.Fetch(ctx); err == nil {
		p.lastSource = v
	}
	if v, err := dest.Fetch(ctx); err == nil {
		p.lastDest = v
	}

	if p.push {
		p.sourceListener = source.RegisterListener(exec, p.onSourceChange)
		p.hasSourceListener = true
	}
	if p.pull {
		p.destListener = dest.RegisterListener(exec, p.onDestChange)
		p.hasDestListener = true
	}
	p.enabled = true
	return nil
}

// Disable cancels both listener registrations.
func (p *Pairing) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	if p.hasSourceListener {
		p.source.UnregisterListener(p.sourceListener)
		p.hasSourceListener = false
	}
	if p.hasDestListener {
		p.dest.UnregisterListener(p.destListener)
		p.hasDestListener = false
	}
	p.enabled = false
}

func (p *Pairing) onSourceChange(ctx context.Context, newValue value.Value) {
	if atomic.CompareAndSwapInt32(&p.suppressForward, 1, 0) {
		return
	}
	p.mu.Lock()
	last := p.lastSource
	p.lastSource = newValue
	p.mu.Unlock()
	p.propagate(ctx, p.forward, newValue, last, p.dest, &p.suppressReverse)
}

func (p *Pairing) onDestChange(ctx context.Context, newValue value.Value) {
	if atomic.CompareAndSwapInt32(&p.suppressReverse, 1, 0) {
		return
	}
	p.mu.Lock()
	last := p.lastDest
	p.lastDest = newValue
	p.mu.Unlock()
	p.propagate(ctx, p.reverse, newValue, last, p.source, &p.suppressForward)
}

// propagate evaluates xform against newValue (binding v=newValue, v_l=last,
// spec §4.3) and writes the result to target, arming suppressFlag so the
// echo this write produces on target's listener does not re-trigger the
// opposite direction. STOP drops the write entirely, as does any SAE
// evaluation error (spec §7 policy).
func (p *Pairing) propagate(ctx context.Context, xform *Program, newValue, last value.Value, target thing.ResourceLink, suppressFlag *int32) {
	result := newValue
	if xform.Source != "" {
		out, err := Evaluate(xform, newValue, Context{V: newValue, VL: last})
		if err != nil {
			return
		}
		result = out
	}
	if result.IsStop() {
		return
	}
	atomic.StoreInt32(suppressFlag, 1)
	if err := target.Invoke(ctx, &result); err != nil {
		atomic.StoreInt32(suppressFlag, 0)
	}
}

// Enabled reports whether the pairing currently has active listeners.
func (p *Pairing) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}
