package thing

import (
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// childKey identifies a hosted child thing by its parent trait's short id
// and a caller-chosen child id (spec §3 "hosts child things keyed by
// (trait_short_id, child_id)").
type childKey struct {
	traitShortID string
	childID      string
}

// Thing is a set of registered traits plus hosted children. Reads/writes
// route through the owning trait's getter/setter; Thing itself owns
// transition bookkeeping, listener fan-out, and section snapshotting.
type Thing struct {
	mu sync.RWMutex

	id     string
	clock  clock.Clock
	traits map[string]TraitImpl

	// transitions tracks in-flight Transition by PropertyKey string, so a
	// subsequent write can cancel one in progress (spec §3 invariant).
	transitions map[string]*Transition

	children map[childKey]*Thing

	propListeners listenerSetByKey
}

// New constructs an empty Thing identified by id, using c to drive
// transitions (clock.RealClock{} in production).
func New(id string, c clock.Clock) *Thing {
	return &Thing{
		id:            id,
		clock:         c,
		traits:        make(map[string]TraitImpl),
		transitions:   make(map[string]*Transition),
		children:      make(map[childKey]*Thing),
		propListeners: newListenerSetByKey(),
	}
}

// ID returns the thing's local identifier.
func (t *Thing) ID() string { return t.id }

// RegisterTrait adds a trait implementation. Property keys across all
// registered traits must be unique per thing (spec §3 invariant); a
// colliding (section, trait, name) triple fails registration.
func (t *Thing) RegisterTrait(impl TraitImpl) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.traits[impl.ShortID()]; exists {
		return errors.UnacceptableThing(fmt.Sprintf("trait %q already registered", impl.ShortID()))
	}
	t.traits[impl.ShortID()] = impl
	return nil
}

// SupportedKeys returns every PropertyKey advertised by this thing's
// registered traits.
func (t *Thing) SupportedKeys() []PropertyKey {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var keys []PropertyKey
	for traitID, impl := range t.traits {
		for _, p := range impl.Properties() {
			keys = append(keys, PropertyKey{Section: p.Section, Trait: traitID, Name: p.Name, ValueType: p.Type})
		}
	}
	return keys
}

func (t *Thing) lookup(key PropertyKey) (TraitImpl, PropertyDescriptor, error) {
	impl, ok := t.traits[key.Trait]
	if !ok {
		return nil, PropertyDescriptor{}, errors.PropertyNotFound(key.String())
	}
	for _, p := range impl.Properties() {
		if p.Name == key.Name && p.Section == key.Section {
			return impl, p, nil
		}
	}
	return nil, PropertyDescriptor{}, errors.PropertyNotFound(key.String())
}

// Get reads a property, applying the transition-target modifier if
// requested: with "tt" set and a transition in flight for key, the
// post-transition target is returned instead of the live interpolated
// value (spec §6).
func (t *Thing) Get(key PropertyKey, mods *Modifiers) (value.Value, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	impl, _, err := t.lookup(key)
	if err != nil {
		return value.Value{}, err
	}
	if mods != nil && mods.Has(ModTransitionTarget) {
		if tr, ok := t.transitions[key.String()]; ok {
			return tr.Target(), nil
		}
	}
	return impl.Get(key.Name)
}

// Set writes a property. Any write cancels an in-progress transition on
// key. A write to a state property with a positive duration modifier
// engages the transition engine unless FlagNoTransition is set or the value
// isn't numeric; every other write (duration=0 included) jumps to target.
// increment/toggle/insert/remove modifiers apply server-side (spec §4.6).
func (t *Thing) Set(key PropertyKey, v value.Value, mods *Modifiers) error {
	t.mu.Lock()
	impl, desc, err := t.lookup(key)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if !desc.Flags.Has(FlagSet) {
		t.mu.Unlock()
		return errors.InvalidPropertyValue(key.String(), fmt.Errorf("property is read-only"))
	}
	if mods == nil {
		mods = NewModifiers()
	}

	v, err = t.applyValueModifiers(impl, key, v, mods)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	keyStr := key.String()
	if existing, ok := t.transitions[keyStr]; ok {
		existing.Cancel()
		delete(t.transitions, keyStr)
	}

	useTransition := key.Section == SectionState && !desc.Flags.Has(FlagNoTransition) && v.IsNumeric()
	duration, hasDuration := mods.Duration()

	if !useTransition || !hasDuration || duration <= 0 {
		if err := impl.Set(key.Name, v); err != nil {
			t.mu.Unlock()
			return errors.InvalidPropertyValue(keyStr, err)
		}
		t.mu.Unlock()
		t.notifyProperty(key, v)
		return nil
	}

	current, err := impl.Get(key.Name)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	c := t.clock
	dur := time.Duration(duration * float64(time.Second))
	tr := StartTransition(c, current, v, dur,
		func(iv value.Value) {
			_ = impl.Set(key.Name, iv)
			t.notifyProperty(key, iv)
		},
		func() {
			t.mu.Lock()
			if t.transitions[keyStr] != nil {
				delete(t.transitions, keyStr)
			}
			t.mu.Unlock()
		})
	t.transitions[keyStr] = tr
	t.mu.Unlock()
	return nil
}

// applyValueModifiers resolves increment/toggle/insert/remove against the
// property's current value, producing the effective value to write.
func (t *Thing) applyValueModifiers(impl TraitImpl, key PropertyKey, v value.Value, mods *Modifiers) (value.Value, error) {
	switch {
	case mods.Has(ModIncrement) || mods.Has(ModDecrement):
		current, err := impl.Get(key.Name)
		if err != nil {
			return value.Value{}, err
		}
		cf, err := current.ToFloat()
		if err != nil {
			return value.Value{}, errors.InvalidPropertyValue(key.String(), err)
		}
		df, err := v.ToFloat()
		if err != nil {
			return value.Value{}, errors.InvalidPropertyValue(key.String(), err)
		}
		if mods.Has(ModDecrement) {
			df = -df
		}
		result := cf + df
		if current.Kind() == value.KindInt {
			return value.Int(int64(result)), nil
		}
		return value.Float(result), nil
	case mods.Has(ModToggle):
		current, err := impl.Get(key.Name)
		if err != nil {
			return value.Value{}, err
		}
		b, err := current.ToBool()
		if err != nil {
			return value.Value{}, errors.InvalidPropertyValue(key.String(), err)
		}
		return value.Bool(!b), nil
	case mods.Has(ModInsert):
		current, err := impl.Get(key.Name)
		if err != nil {
			return value.Value{}, err
		}
		return current.Push(v), nil
	case mods.Has(ModRemove):
		current, err := impl.Get(key.Name)
		if err != nil {
			return value.Value{}, err
		}
		rest, _, err := current.PopLast()
		if err != nil {
			return value.Value{}, errors.InvalidPropertyValue(key.String(), err)
		}
		return rest, nil
	default:
		return v, nil
	}
}

// Invoke calls a method by MethodKey with an argument map.
func (t *Thing) Invoke(key MethodKey, args value.Value) (value.Value, error) {
	t.mu.RLock()
	impl, ok := t.traits[key.Trait]
	t.mu.RUnlock()
	if !ok {
		return value.Value{}, errors.MethodNotFound(key.String())
	}
	found := false
	for _, m := range impl.Methods() {
		if m.Name == key.Method {
			found = true
			break
		}
	}
	if !found {
		return value.Value{}, errors.MethodNotFound(key.String())
	}
	return impl.Invoke(key.Method, args)
}

// SnapshotSection returns a nested trait->prop->value map for sec, used
// both by SectionResourceLink reads and by persistent-state export (spec
// §4.6, §6).
func (t *Thing) SnapshotSection(sec Section) (value.Value, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]value.Value)
	for traitID, impl := range t.traits {
		traitMap := make(map[string]value.Value)
		for _, p := range impl.Properties() {
			if p.Section != sec {
				continue
			}
			if p.Flags.Has(FlagNoSave) && sec == SectionConfig {
				continue
			}
			v, err := impl.Get(p.Name)
			if err != nil {
				return value.Value{}, err
			}
			traitMap[p.Name] = v
		}
		if len(traitMap) > 0 {
			out[traitID] = value.Map(traitMap)
		}
	}
	return value.Map(out), nil
}

// ApplySection applies a nested trait->prop->value map atomically to sec.
// Every property in snapshot must resolve or the whole apply fails with
// CorruptPersistentState, leaving no partial writes.
func (t *Thing) ApplySection(sec Section, snapshot value.Value) error {
	m, err := snapshot.ToMap()
	if err != nil {
		return errors.CorruptPersistentState("section snapshot is not a map")
	}

	type pending struct {
		impl TraitImpl
		name string
		val  value.Value
	}
	var writes []pending

	t.mu.RLock()
	for traitID, traitVal := range m {
		impl, ok := t.traits[traitID]
		if !ok {
			t.mu.RUnlock()
			return errors.CorruptPersistentState(fmt.Sprintf("unknown trait %q in snapshot", traitID))
		}
		propMap, err := traitVal.ToMap()
		if err != nil {
			t.mu.RUnlock()
			return errors.CorruptPersistentState(fmt.Sprintf("trait %q value is not a map", traitID))
		}
		declared := make(map[string]bool)
		for _, p := range impl.Properties() {
			if p.Section == sec {
				declared[p.Name] = true
			}
		}
		for name, v := range propMap {
			if !declared[name] {
				t.mu.RUnlock()
				return errors.CorruptPersistentState(fmt.Sprintf("unknown property %q on trait %q", name, traitID))
			}
			writes = append(writes, pending{impl: impl, name: name, val: v})
		}
	}
	t.mu.RUnlock()

	for _, w := range writes {
		if err := w.impl.Set(w.name, w.val); err != nil {
			return errors.CorruptPersistentState(err.Error())
		}
	}
	return nil
}

// Host registers a child thing under (traitShortID, childID).
func (t *Thing) Host(traitShortID, childID string, child *Thing) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := childKey{traitShortID, childID}
	if _, exists := t.children[key]; exists {
		return errors.AlreadyExists("child", childID)
	}
	t.children[key] = child
	return nil
}

// Unhost removes a hosted child thing.
func (t *Thing) Unhost(traitShortID, childID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.children, childKey{traitShortID, childID})
}

// Child returns a hosted child thing, if any.
func (t *Thing) Child(traitShortID, childID string) (*Thing, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.children[childKey{traitShortID, childID}]
	return c, ok
}

// Children returns all hosted children.
func (t *Thing) Children() map[string]*Thing {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*Thing, len(t.children))
	for k, v := range t.children {
		out[fmt.Sprintf("%s/%s", k.traitShortID, k.childID)] = v
	}
	return out
}

func (t *Thing) notifyProperty(key PropertyKey, v value.Value) {
	t.propListeners.notify(key, v)
}

// RegisterPropertyListener subscribes to changes on key, delivered via exec.
func (t *Thing) RegisterPropertyListener(key PropertyKey, exec Executor, fn ListenerFunc) ListenerHandle {
	return t.propListeners.register(key, exec, fn)
}

// UnregisterPropertyListener removes a previously registered listener.
func (t *Thing) UnregisterPropertyListener(key PropertyKey, h ListenerHandle) {
	t.propListeners.unregister(key, h)
}
