package thing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/R3E-Network/splot/infrastructure/errors"
)

// ModifierKey names a recognized query modifier (spec §6).
type ModifierKey string

const (
	ModDuration          ModifierKey = "d"
	ModTransitionTarget  ModifierKey = "tt"
	ModAll               ModifierKey = "all"
	ModIncrement         ModifierKey = "inc"
	ModDecrement         ModifierKey = "dec"
	ModToggle            ModifierKey = "tog"
	ModInsert            ModifierKey = "ins"
	ModRemove            ModifierKey = "rem"
)

var recognizedModifiers = map[ModifierKey]bool{
	ModDuration: true, ModTransitionTarget: true, ModAll: true,
	ModIncrement: true, ModDecrement: true, ModToggle: true,
	ModInsert: true, ModRemove: true,
}

// Modifiers is an ordered set of modifiers attached to a property read or
// write. Order is preserved from parsing / insertion so that round-tripping
// through ConvertToQuery is stable.
type Modifiers struct {
	order []ModifierKey
	flags map[ModifierKey]bool
	dur   *float64 // seconds, only meaningful when flags[ModDuration]
}

// NewModifiers returns an empty modifier set.
func NewModifiers() *Modifiers {
	return &Modifiers{flags: make(map[ModifierKey]bool)}
}

func (m *Modifiers) set(key ModifierKey) {
	if !m.flags[key] {
		m.order = append(m.order, key)
	}
	m.flags[key] = true
}

// WithDuration attaches a transition duration in seconds. Negative
// durations are rejected with InvalidModifier (spec §6, §8b).
func (m *Modifiers) WithDuration(seconds float64) (*Modifiers, error) {
	if seconds < 0 {
		return m, errors.InvalidModifier("duration must be non-negative, got %v", seconds)
	}
	m.set(ModDuration)
	d := seconds
	m.dur = &d
	return m, nil
}

// WithTransitionTarget requests the post-transition value on reads.
func (m *Modifiers) WithTransitionTarget() *Modifiers { m.set(ModTransitionTarget); return m }

// WithAll requests all section/child values be included.
func (m *Modifiers) WithAll() *Modifiers { m.set(ModAll); return m }

// WithIncrement marks the write as a numeric increment.
func (m *Modifiers) WithIncrement() *Modifiers { m.set(ModIncrement); return m }

// WithDecrement marks the write as a numeric decrement.
func (m *Modifiers) WithDecrement() *Modifiers { m.set(ModDecrement); return m }

// WithToggle marks the write as a boolean toggle.
func (m *Modifiers) WithToggle() *Modifiers { m.set(ModToggle); return m }

// WithInsert marks the write as an array insert.
func (m *Modifiers) WithInsert() *Modifiers { m.set(ModInsert); return m }

// WithRemove marks the write as an array remove.
func (m *Modifiers) WithRemove() *Modifiers { m.set(ModRemove); return m }

// Has reports whether key is present.
func (m *Modifiers) Has(key ModifierKey) bool { return m.flags[key] }

// Duration returns the transition duration, if set.
func (m *Modifiers) Duration() (float64, bool) {
	if m.dur == nil {
		return 0, false
	}
	return *m.dur, true
}

// ConvertToQuery renders the modifier set as "key[=value]&..." joined by
// "&", duration encoded as "d=NN.NN" with two decimals (spec §3, §8b).
func (m *Modifiers) ConvertToQuery() string {
	parts := make([]string, 0, len(m.order))
	for _, k := range m.order {
		if k == ModDuration && m.dur != nil {
			parts = append(parts, fmt.Sprintf("d=%.2f", *m.dur))
			continue
		}
		parts = append(parts, string(k))
	}
	return strings.Join(parts, "&")
}

// ParseModifiers parses a "key[=value]&..." query string into a Modifiers
// set. Unknown keys and negative durations fail with InvalidModifier /
// InvalidModifierList.
func ParseModifiers(query string) (*Modifiers, error) {
	m := NewModifiers()
	if query == "" {
		return m, nil
	}
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			return nil, errors.InvalidModifierList("empty modifier token in %q", query)
		}
		kv := strings.SplitN(part, "=", 2)
		key := ModifierKey(kv[0])
		if !recognizedModifiers[key] {
			return nil, errors.InvalidModifierList("unknown modifier %q", kv[0])
		}
		if key == ModDuration {
			if len(kv) != 2 {
				return nil, errors.InvalidModifier("duration modifier requires a value")
			}
			d, err := strconv.ParseFloat(kv[1], 64)
			if err != nil {
				return nil, errors.InvalidModifier("malformed duration %q", kv[1])
			}
			if _, err := m.WithDuration(d); err != nil {
				return nil, err
			}
			continue
		}
		if len(kv) != 1 {
			return nil, errors.InvalidModifierList("modifier %q does not take a value", kv[0])
		}
		m.set(key)
	}
	return m, nil
}

// Keys returns the modifier keys present, sorted, for stable inspection in
// tests and logs.
func (m *Modifiers) Keys() []string {
	out := make([]string, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
