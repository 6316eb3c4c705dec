package automation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// MatchMode selects how a Rule's conditions combine (spec §4.4).
type MatchMode string

const (
	MatchAll MatchMode = "ALL"
	MatchAny MatchMode = "ANY"
)

// ConditionConfig is one monitored resource plus the SAE expression
// evaluated against it.
type ConditionConfig struct {
	URI  string
	Expr string
}

// condition caches a monitored resource's current and previous value, the
// v/v_l binding an edge-detecting expression reads (spec §4.4).
type condition struct {
	uri     string
	program *Program
	link    thing.ResourceLink
	handle  thing.ListenerHandle

	mu   sync.Mutex
	curr value.Value
	last value.Value
}

// RuleConfig is a Rule's static configuration.
type RuleConfig struct {
	Conditions []ConditionConfig
	Match      MatchMode
	Actions    []Action
}

// Rule evaluates a set of conditions against ALL/ANY matching and dispatches
// actions when the aggregate is true. Re-evaluation triggered by concurrent
// resource changes is coalesced via a compare-and-set pending flag so a
// rule never evaluates two passes concurrently (spec §4.4, §5).
type Rule struct {
	mu         sync.Mutex
	conditions []*condition
	match      MatchMode
	dispatcher *Dispatcher
	actions    []Action
	clock      clock.Clock

	enabled bool
	c       int64

	evaluating int32
	pending    int32
}

// NewRule compiles every condition's expression and returns a disabled
// Rule.
func NewRule(cfg RuleConfig, dispatcher *Dispatcher, c clock.Clock) (*Rule, error) {
	if err := ValidateActions(cfg.Actions); err != nil {
		return nil, err
	}
	conds := make([]*condition, 0, len(cfg.Conditions))
	for _, cc := range cfg.Conditions {
		prog, err := Compile(cc.Expr)
		if err != nil {
			return nil, errors.InvalidPropertyValue("s/rule/cond", err)
		}
		conds = append(conds, &condition{uri: cc.URI, program: prog, curr: value.Null(), last: value.Null()})
	}
	match := cfg.Match
	if match == "" {
		match = MatchAll
	}
	return &Rule{conditions: conds, match: match, dispatcher: dispatcher, actions: cfg.Actions, clock: c}, nil
}

// Enable resolves every condition's URI and installs a listener that marks
// a re-evaluation pending on every observed change.
func (r *Rule) Enable(ctx context.Context, mgr thing.ResourceLinkManager, exec thing.Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled {
		return nil
	}
	r.c = 0
	for _, cond := range r.conditions {
		link, err := mgr.Resolve(ctx, cond.uri)
		if err != nil {
			return err
		}
		cond.link = link
		cond := cond
		cond.handle = link.RegisterListener(exec, func(ctx context.Context, v value.Value) {
			cond.mu.Lock()
			cond.last = cond.curr
			cond.curr = v
			cond.mu.Unlock()
			r.scheduleEvaluate(ctx)
		})
	}
	r.enabled = true
	return nil
}

// Disable cancels every condition's listener.
func (r *Rule) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	for _, cond := range r.conditions {
		cond.link.UnregisterListener(cond.handle)
	}
	r.enabled = false
}

// scheduleEvaluate runs an evaluation pass, or if one is already running,
// marks a single follow-up pass pending (the "compare-and-set flag"
// coalescing scheme from spec §4.4/§5).
func (r *Rule) scheduleEvaluate(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&r.evaluating, 0, 1) {
		atomic.StoreInt32(&r.pending, 1)
		return
	}
	for {
		r.evaluateOnce(ctx)
		if !atomic.CompareAndSwapInt32(&r.pending, 1, 0) {
			atomic.StoreInt32(&r.evaluating, 0)
			return
		}
	}
}

func (r *Rule) evaluateOnce(ctx context.Context) {
	rtc := clock.RTC{}
	if r.clock != nil {
		rtc = clock.FromTime(r.clock.Now())
	}
	c := atomic.LoadInt64(&r.c)

	var aggregate bool
	switch r.match {
	case MatchAny:
		aggregate = false
	default:
		aggregate = true
	}

	for _, cond := range r.conditions {
		cond.mu.Lock()
		curr, last := cond.curr, cond.last
		cond.mu.Unlock()

		result := evaluateConditionBool(cond.program, curr, last, c, rtc)
		if r.match == MatchAny {
			if result {
				aggregate = true
				break
			}
		} else {
			if !result {
				aggregate = false
				break
			}
		}
	}

	if aggregate {
		atomic.AddInt64(&r.c, 1)
		r.dispatcher.Dispatch(ctx, r.actions)
	}
}

// evaluateConditionBool runs expr and coerces the result to bool, treating
// any SAE evaluation error as false (spec §7 policy for predicates).
func evaluateConditionBool(program *Program, curr, last value.Value, c int64, rtc clock.RTC) bool {
	result, err := Evaluate(program, curr, Context{V: curr, VL: last, C: c, RTC: rtc})
	if err != nil {
		return false
	}
	b, err := result.ToBool()
	if err != nil {
		return false
	}
	return b
}

// Count returns how many times this rule's aggregate condition has been
// true since the last reset.
func (r *Rule) Count() int64 { return atomic.LoadInt64(&r.c) }

// ResetCount zeroes the fire counter (volatile per spec §3).
func (r *Rule) ResetCount() { atomic.StoreInt64(&r.c, 0) }

// Enabled reports whether the rule currently has active listeners.
func (r *Rule) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}
