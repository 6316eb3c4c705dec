package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// PrimitiveKind names one of the three manager families addressable under
// a thing's automation URI space (spec §6: /N/f/pmgr, /N/f/rmgr, /N/f/tmgr).
type PrimitiveKind string

const (
	KindPairing PrimitiveKind = "pmgr"
	KindRule    PrimitiveKind = "rmgr"
	KindTimer   PrimitiveKind = "tmgr"
)

// pairingEntry, ruleEntry and timerEntry retain the config each primitive
// was created from, so Snapshot can re-emit it without reaching into
// unexported Pairing/Rule/Timer fields.
type pairingEntry struct {
	cfg PairingConfig
	p   *Pairing
}

type ruleEntry struct {
	cfg RuleConfig
	r   *Rule
}

type timerEntry struct {
	cfg TimerConfig
	tm  *Timer
}

// Manager is the factory and registry for a single thing's Pairing, Rule
// and Timer primitives (spec §2 "AutomationManager", §6 URI space). One
// Manager holds all three kinds for its thing.
type Manager struct {
	mu sync.Mutex

	mgr    thing.ResourceLinkManager
	exec   thing.Executor
	clock  clock.Clock
	caller RestCaller

	pairings map[string]*pairingEntry
	rules    map[string]*ruleEntry
	timers   map[string]*timerEntry
}

// NewManager builds an AutomationManager bound to the given resource
// resolver, listener executor, clock and REST caller (shared by every
// primitive's action dispatcher).
func NewManager(mgr thing.ResourceLinkManager, exec thing.Executor, c clock.Clock, caller RestCaller) *Manager {
	return &Manager{
		mgr: mgr, exec: exec, clock: c, caller: caller,
		pairings: make(map[string]*pairingEntry),
		rules:    make(map[string]*ruleEntry),
		timers:   make(map[string]*timerEntry),
	}
}

func newID() string { return uuid.NewString() }

// CreatePairing compiles and registers a new Pairing, enables it, and
// returns its ID (the path segment appended after "/f/pmgr/").
func (m *Manager) CreatePairing(ctx context.Context, cfg PairingConfig) (string, error) {
	p, err := NewPairing(cfg)
	if err != nil {
		return "", err
	}
	if err := p.Enable(ctx, m.mgr, m.exec); err != nil {
		return "", err
	}
	id := newID()
	m.mu.Lock()
	m.pairings[id] = &pairingEntry{cfg: cfg, p: p}
	m.mu.Unlock()
	return id, nil
}

// CreateRule compiles and registers a new Rule, enables it, and returns its
// ID.
func (m *Manager) CreateRule(ctx context.Context, cfg RuleConfig) (string, error) {
	dispatcher := NewDispatcher(m.caller, m.mgr, nil)
	r, err := NewRule(cfg, dispatcher, m.clock)
	if err != nil {
		return "", err
	}
	if err := r.Enable(ctx, m.mgr, m.exec); err != nil {
		return "", err
	}
	id := newID()
	m.mu.Lock()
	m.rules[id] = &ruleEntry{cfg: cfg, r: r}
	m.mu.Unlock()
	return id, nil
}

// CreateTimer compiles and registers a new Timer, arms it, and returns its
// ID.
func (m *Manager) CreateTimer(ctx context.Context, cfg TimerConfig) (string, error) {
	dispatcher := NewDispatcher(m.caller, m.mgr, nil)
	tm, err := NewTimer(cfg, dispatcher, m.clock)
	if err != nil {
		return "", err
	}
	tm.Enable(ctx)
	id := newID()
	m.mu.Lock()
	m.timers[id] = &timerEntry{cfg: cfg, tm: tm}
	m.mu.Unlock()
	return id, nil
}

// Pairing returns a registered Pairing by ID.
func (m *Manager) Pairing(id string) (*Pairing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pairings[id]
	if !ok {
		return nil, errors.NotFound("pairing", id)
	}
	return e.p, nil
}

// Rule returns a registered Rule by ID.
func (m *Manager) Rule(id string) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rules[id]
	if !ok {
		return nil, errors.NotFound("rule", id)
	}
	return e.r, nil
}

// Timer returns a registered Timer by ID.
func (m *Manager) Timer(id string) (*Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.timers[id]
	if !ok {
		return nil, errors.NotFound("timer", id)
	}
	return e.tm, nil
}

// ResolveFunction implements thing.FunctionResolver, exposing each
// registered primitive's enabled state at
// "<kind>/<id>/s/enab/v" (spec §6, §8 scenario d: a Rule action writing
// "/1/f/tmgr/2/s/enab/v" to enable a sibling Timer).
func (m *Manager) ResolveFunction(ctx context.Context, rest string) (thing.ResourceLink, error) {
	kind, idAndProp, ok := strings.Cut(rest, "/")
	if !ok {
		return nil, errors.UnknownResource(rest)
	}
	id, propPath, ok := strings.Cut(idAndProp, "/")
	if !ok {
		return nil, errors.UnknownResource(rest)
	}
	if propPath != "s/enab/v" {
		return nil, errors.UnknownResource(rest)
	}

	switch PrimitiveKind(kind) {
	case KindPairing:
		p, err := m.Pairing(id)
		if err != nil {
			return nil, err
		}
		return &primitiveEnabledLink{
			get: func() bool { return p.Enabled() },
			set: func(ctx context.Context, enable bool) error {
				if enable {
					return p.Enable(ctx, m.mgr, m.exec)
				}
				p.Disable()
				return nil
			},
		}, nil
	case KindRule:
		r, err := m.Rule(id)
		if err != nil {
			return nil, err
		}
		return &primitiveEnabledLink{
			get: func() bool { return r.Enabled() },
			set: func(ctx context.Context, enable bool) error {
				if enable {
					return r.Enable(ctx, m.mgr, m.exec)
				}
				r.Disable()
				return nil
			},
		}, nil
	case KindTimer:
		tm, err := m.Timer(id)
		if err != nil {
			return nil, err
		}
		return &primitiveEnabledLink{
			get: func() bool { return tm.State() != TimerDisabled },
			set: func(ctx context.Context, enable bool) error {
				if enable {
					tm.Enable(ctx)
				} else {
					tm.Disable()
				}
				return nil
			},
		}, nil
	default:
		return nil, errors.UnknownResource(rest)
	}
}

// primitiveEnabledLink adapts a primitive's Enable/Disable pair to the
// thing.ResourceLink interface so it can be addressed and written like any
// other property (spec §6, §8 scenario d). It carries no listeners: a
// primitive's enabled state is only ever driven by explicit writes, never
// by another component's change stream.
type primitiveEnabledLink struct {
	get func() bool
	set func(ctx context.Context, enable bool) error
}

func (l *primitiveEnabledLink) Fetch(ctx context.Context) (value.Value, error) {
	return value.Bool(l.get()), nil
}

func (l *primitiveEnabledLink) Invoke(ctx context.Context, v *value.Value) error {
	if v == nil {
		return errors.InvalidValue("enabled-state write requires a value")
	}
	enable, err := v.ToBool()
	if err != nil {
		return err
	}
	return l.set(ctx, enable)
}

func (l *primitiveEnabledLink) RegisterListener(exec thing.Executor, fn thing.ListenerFunc) thing.ListenerHandle {
	return 0
}

func (l *primitiveEnabledLink) UnregisterListener(handle thing.ListenerHandle) {}

// Delete disables and removes a primitive of the given kind, unhooking all
// of its listeners (spec §3 "deletion unhooks all listeners").
func (m *Manager) Delete(kind PrimitiveKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case KindPairing:
		e, ok := m.pairings[id]
		if !ok {
			return errors.NotFound("pairing", id)
		}
		e.p.Disable()
		delete(m.pairings, id)
	case KindRule:
		e, ok := m.rules[id]
		if !ok {
			return errors.NotFound("rule", id)
		}
		e.r.Disable()
		delete(m.rules, id)
	case KindTimer:
		e, ok := m.timers[id]
		if !ok {
			return errors.NotFound("timer", id)
		}
		e.tm.Disable()
		delete(m.timers, id)
	default:
		return errors.UnknownResource(string(kind))
	}
	return nil
}

// IDs lists the registered primitive IDs for one kind, in no particular
// order.
func (m *Manager) IDs(kind PrimitiveKind) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	switch kind {
	case KindPairing:
		for id := range m.pairings {
			ids = append(ids, id)
		}
	case KindRule:
		for id := range m.rules {
			ids = append(ids, id)
		}
	case KindTimer:
		for id := range m.timers {
			ids = append(ids, id)
		}
	}
	return ids
}

// Snapshot emits every primitive's config section as a nested property map
// (spec §6 "Persistent-state snapshots"): kind -> id -> {config fields}.
// The dispatcher-level volatile fields (count, last-fired) are excluded,
// matching the no-save convention applied to property sections.
func (m *Manager) Snapshot() value.Value {
	m.mu.Lock()
	defer m.mu.Unlock()

	pairings := make(map[string]value.Value, len(m.pairings))
	for id, e := range m.pairings {
		pairings[id] = pairingConfigToValue(e.cfg)
	}
	rules := make(map[string]value.Value, len(m.rules))
	for id, e := range m.rules {
		rules[id] = ruleConfigToValue(e.cfg)
	}
	timers := make(map[string]value.Value, len(m.timers))
	for id, e := range m.timers {
		timers[id] = timerConfigToValue(e.cfg)
	}
	return value.Map(map[string]value.Value{
		string(KindPairing): value.Map(pairings),
		string(KindRule):    value.Map(rules),
		string(KindTimer):   value.Map(timers),
	})
}

// Restore recreates every primitive recorded in a Snapshot's output,
// enabling each as it is created. Any malformed entry fails the whole
// restore with CorruptPersistentState (spec §3: "applies the map
// atomically").
func (m *Manager) Restore(ctx context.Context, snapshot value.Value) error {
	top, err := snapshot.ToMap()
	if err != nil {
		return errors.CorruptPersistentState("snapshot is not a map")
	}

	pairingCfgs, err := decodeGroup(top, string(KindPairing), decodePairingConfig)
	if err != nil {
		return err
	}
	ruleCfgs, err := decodeGroup(top, string(KindRule), decodeRuleConfig)
	if err != nil {
		return err
	}
	timerCfgs, err := decodeGroup(top, string(KindTimer), decodeTimerConfig)
	if err != nil {
		return err
	}

	for _, cfg := range pairingCfgs {
		if _, err := m.CreatePairing(ctx, cfg); err != nil {
			return errors.CorruptPersistentState(fmt.Sprintf("pairing restore: %v", err))
		}
	}
	for _, cfg := range ruleCfgs {
		if _, err := m.CreateRule(ctx, cfg); err != nil {
			return errors.CorruptPersistentState(fmt.Sprintf("rule restore: %v", err))
		}
	}
	for _, cfg := range timerCfgs {
		if _, err := m.CreateTimer(ctx, cfg); err != nil {
			return errors.CorruptPersistentState(fmt.Sprintf("timer restore: %v", err))
		}
	}
	return nil
}

func decodeGroup[T any](top map[string]value.Value, key string, decode func(value.Value) (T, error)) ([]T, error) {
	raw, ok := top[key]
	if !ok {
		return nil, nil
	}
	group, err := raw.ToMap()
	if err != nil {
		return nil, errors.CorruptPersistentState(key + " group is not a map")
	}
	out := make([]T, 0, len(group))
	for _, v := range group {
		cfg, err := decode(v)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}
