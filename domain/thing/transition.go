package thing

import (
	"sync"
	"time"

	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/value"
)

// Transition smoothly interpolates a state property from its current value
// to a target over a duration: linear for numerics, a snap (immediate jump
// at completion) for everything else (spec §4.6).
type Transition struct {
	mu       sync.Mutex
	clock    clock.Clock
	from     value.Value
	to       value.Value
	start    time.Time
	duration time.Duration
	cancel   chan struct{}
	apply    func(value.Value)
	done     func()
}

// StartTransition begins interpolating from "from" to "to" over duration,
// calling apply with each intermediate value and done once the transition
// completes or is cancelled. A zero duration applies "to" immediately and
// calls done without starting a ticking goroutine.
func StartTransition(c clock.Clock, from, to value.Value, duration time.Duration, apply func(value.Value), done func()) *Transition {
	tr := &Transition{
		clock: c, from: from, to: to, start: c.Now(), duration: duration,
		cancel: make(chan struct{}), apply: apply, done: done,
	}
	if duration <= 0 {
		apply(to)
		if done != nil {
			done()
		}
		return tr
	}
	go tr.run()
	return tr
}

const transitionTickInterval = 20 * time.Millisecond

func (tr *Transition) run() {
	ticker := time.NewTicker(transitionTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-tr.cancel:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(tr.start)
			if elapsed >= tr.duration {
				tr.apply(tr.to)
				if tr.done != nil {
					tr.done()
				}
				return
			}
			frac := float64(elapsed) / float64(tr.duration)
			tr.apply(interpolate(tr.from, tr.to, frac))
		}
	}
}

// Target returns the value this transition is interpolating towards, the
// post-transition value a "tt" modifier read asks for (spec §6).
func (tr *Transition) Target() value.Value {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.to
}

// Cancel stops the transition in progress without calling apply/done
// again. Per spec §3, a write with duration=0 cancels any in-progress
// transition and jumps to target — Thing.Set achieves the "jump to target"
// half by writing the target through the trait after cancelling.
func (tr *Transition) Cancel() {
	select {
	case <-tr.cancel:
	default:
		close(tr.cancel)
	}
}

// interpolate computes the value at fraction frac in [0,1] of the way from
// "from" to "to". Numeric values interpolate linearly; anything else snaps
// to "to" once frac reaches 1 and otherwise holds "from".
func interpolate(from, to value.Value, frac float64) value.Value {
	if frac >= 1 {
		return to
	}
	if from.IsNumeric() && to.IsNumeric() {
		f0, _ := from.ToFloat()
		f1, _ := to.ToFloat()
		v := f0 + (f1-f0)*frac
		if from.Kind() == value.KindInt && to.Kind() == value.KindInt {
			return value.Int(int64(v))
		}
		return value.Float(v)
	}
	return from
}
