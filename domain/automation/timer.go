package automation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// TimerState is a position in the Disabled -> Armed -> Firing -> (Armed |
// Disabled) state machine (spec §4.5).
type TimerState string

const (
	TimerDisabled TimerState = "disabled"
	TimerArmed    TimerState = "armed"
	TimerFiring   TimerState = "firing"
)

// TimerConfig is a Timer's static configuration. Predicate defaults to an
// always-true expression when empty.
type TimerConfig struct {
	Schedule  string // SAE -> seconds to wait
	Predicate string // SAE -> bool, default true
	AutoReset bool
	Actions   []Action
}

// Timer arms a one-shot delay computed by evaluating Schedule, and on fire
// evaluates Predicate to decide whether to dispatch its action list,
// re-arming if auto-reset is set (spec §4.5).
type Timer struct {
	mu sync.Mutex

	schedule  *Program
	predicate *Program
	autoReset bool
	actions   []Action

	dispatcher *Dispatcher
	clock      clock.Clock

	state      TimerState
	c          int64
	cancelChan chan struct{}
}

// NewTimer compiles schedule/predicate and returns a disabled Timer.
func NewTimer(cfg TimerConfig, dispatcher *Dispatcher, c clock.Clock) (*Timer, error) {
	if err := ValidateActions(cfg.Actions); err != nil {
		return nil, err
	}
	sched, err := Compile(cfg.Schedule)
	if err != nil {
		return nil, errors.InvalidPropertyValue("s/timr/sched", err)
	}
	pred := alwaysTruePredicate
	if cfg.Predicate != "" {
		pred, err = Compile(cfg.Predicate)
		if err != nil {
			return nil, errors.InvalidPropertyValue("s/timr/pred", err)
		}
	}
	return &Timer{
		schedule: sched, predicate: pred, autoReset: cfg.AutoReset,
		actions: cfg.Actions, dispatcher: dispatcher, clock: c, state: TimerDisabled,
	}, nil
}

var alwaysTruePredicate = mustCompile("1 1 ==")

func mustCompile(source string) *Program {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

// Enable resets the fire counter to zero and arms the timer.
func (t *Timer) Enable(ctx context.Context) {
	t.mu.Lock()
	if t.state != TimerDisabled {
		t.mu.Unlock()
		return
	}
	t.c = 0
	t.cancelChan = make(chan struct{})
	t.state = TimerArmed
	t.mu.Unlock()
	t.arm(ctx)
}

// Disable cancels any pending delay and transitions to Disabled.
func (t *Timer) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TimerDisabled {
		return
	}
	if t.cancelChan != nil {
		close(t.cancelChan)
		t.cancelChan = nil
	}
	t.state = TimerDisabled
}

// arm evaluates the schedule expression for the current RTC/c binding and
// schedules a one-shot delay; a non-positive result is treated as 1ms to
// avoid busy-looping (spec §4.5).
func (t *Timer) arm(ctx context.Context) {
	t.mu.Lock()
	if t.state != TimerArmed {
		t.mu.Unlock()
		return
	}
	rtc := clock.RTC{}
	if t.clock != nil {
		rtc = clock.FromTime(t.clock.Now())
	}
	c := t.c
	cancel := t.cancelChan
	t.mu.Unlock()

	result, err := Evaluate(t.schedule, value.Null(), Context{C: c, RTC: rtc})
	seconds := 0.001
	if err == nil {
		if f, ferr := result.ToFloat(); ferr == nil && f > 0 {
			seconds = f
		}
	}
	delay := time.Duration(seconds * float64(time.Second))

	go func() {
		var fired <-chan time.Time
		if t.clock != nil {
			fired = t.clock.After(delay)
		} else {
			fired = time.After(delay)
		}
		select {
		case <-cancel:
			return
		case <-fired:
			t.fire(ctx)
		}
	}()
}

func (t *Timer) fire(ctx context.Context) {
	t.mu.Lock()
	if t.state != TimerArmed {
		t.mu.Unlock()
		return
	}
	t.state = TimerFiring
	rtc := clock.RTC{}
	if t.clock != nil {
		rtc = clock.FromTime(t.clock.Now())
	}
	c := t.c
	t.mu.Unlock()

	result, err := Evaluate(t.predicate, value.Null(), Context{C: c, RTC: rtc})
	fireActions := false
	if err == nil {
		if b, berr := result.ToBool(); berr == nil && b {
			fireActions = true
		}
	}

	if fireActions {
		atomic.AddInt64(&t.c, 1)
		t.dispatcher.Dispatch(ctx, t.actions)
	}

	t.mu.Lock()
	if t.autoReset {
		t.state = TimerArmed
		t.mu.Unlock()
		t.arm(ctx)
		return
	}
	t.state = TimerDisabled
	t.mu.Unlock()
}

// State returns the timer's current state-machine position.
func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Count returns how many times the timer has fired since the last reset.
func (t *Timer) Count() int64 { return atomic.LoadInt64(&t.c) }

// ResetCount zeroes the fire counter without affecting arming state
// (spec §3: volatile, reset via an explicit property write).
func (t *Timer) ResetCount() { atomic.StoreInt64(&t.c, 0) }
