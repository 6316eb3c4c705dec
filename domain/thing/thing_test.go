package thing

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/splot/domain/value"
)

// fakeClock lets transition tests control time without sleeping.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.now.Add(d)
	return ch
}

// levelTrait is a minimal TraitImpl exercising a single numeric state
// property, used across Thing tests.
type levelTrait struct {
	BaseTrait
	level value.Value
}

func newLevelTrait() *levelTrait {
	return &levelTrait{
		BaseTrait: NewBaseTrait("levl", []PropertyDescriptor{
			{Section: SectionState, Name: "level", Type: value.KindInt, Flags: ReadWrite},
		}, nil),
		level: value.Int(0),
	}
}

func (l *levelTrait) Get(name string) (value.Value, error) {
	if name == "level" {
		return l.level, nil
	}
	return value.Value{}, nil
}

func (l *levelTrait) Set(name string, v value.Value) error {
	if name == "level" {
		l.level = v
	}
	return nil
}

func (l *levelTrait) Invoke(method string, args value.Value) (value.Value, error) {
	return value.Null(), nil
}

func levelKey() PropertyKey {
	return PropertyKey{Section: SectionState, Trait: "levl", Name: "level", ValueType: value.KindInt}
}

func TestSetWithoutDurationAppliesImmediately(t *testing.T) {
	th := New("light1", RealClockForTest{})
	trait := newLevelTrait()
	if err := th.RegisterTrait(trait); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := th.Set(levelKey(), value.Int(42), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := th.Get(levelKey(), nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if i, _ := got.ToInt(); i != 42 {
		t.Fatalf("expected 42, got %v", i)
	}
}

func TestSetReadOnlyPropertyFails(t *testing.T) {
	th := New("t", RealClockForTest{})
	trait := &levelTrait{
		BaseTrait: NewBaseTrait("levl", []PropertyDescriptor{
			{Section: SectionState, Name: "level", Type: value.KindInt, Flags: ReadOnly},
		}, nil),
		level: value.Int(0),
	}
	th.RegisterTrait(trait)
	if err := th.Set(levelKey(), value.Int(1), nil); err == nil {
		t.Fatal("expected error setting read-only property")
	}
}

func TestIncrementModifier(t *testing.T) {
	th := New("t", RealClockForTest{})
	trait := newLevelTrait()
	trait.level = value.Int(5)
	th.RegisterTrait(trait)

	mods := NewModifiers().WithIncrement()
	if err := th.Set(levelKey(), value.Int(3), mods); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _ := th.Get(levelKey(), nil)
	if i, _ := got.ToInt(); i != 8 {
		t.Fatalf("expected 8, got %v", i)
	}
}

func TestToggleModifierOnBool(t *testing.T) {
	th := New("t", RealClockForTest{})
	trait := &boolTrait{
		BaseTrait: NewBaseTrait("onof", []PropertyDescriptor{
			{Section: SectionState, Name: "on", Type: value.KindBool, Flags: ReadWrite},
		}, nil),
		on: value.Bool(false),
	}
	th.RegisterTrait(trait)
	key := PropertyKey{Section: SectionState, Trait: "onof", Name: "on", ValueType: value.KindBool}

	if err := th.Set(key, value.Value{}, NewModifiers().WithToggle()); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, _ := th.Get(key, nil)
	if b, _ := got.ToBool(); !b {
		t.Fatal("expected true after toggle")
	}
}

type boolTrait struct {
	BaseTrait
	on value.Value
}

func (b *boolTrait) Get(name string) (value.Value, error) { return b.on, nil }
func (b *boolTrait) Set(name string, v value.Value) error { b.on = v; return nil }
func (b *boolTrait) Invoke(method string, args value.Value) (value.Value, error) {
	return value.Null(), nil
}

func TestGetWithTransitionTargetModifierReturnsTarget(t *testing.T) {
	th := New("t", RealClockForTest{})
	trait := newLevelTrait()
	trait.level = value.Int(0)
	th.RegisterTrait(trait)

	durMods, err := NewModifiers().WithDuration(5)
	if err != nil {
		t.Fatalf("WithDuration: %v", err)
	}
	if err := th.Set(levelKey(), value.Int(99), durMods); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Read immediately, before the transition's first tick (20ms) has a
	// chance to land: the live value is still interpolating from 0, but a
	// "tt" read must answer with the post-transition target regardless.
	live, err := th.Get(levelKey(), nil)
	if err != nil {
		t.Fatalf("get live: %v", err)
	}
	if i, _ := live.ToInt(); i != 0 {
		t.Fatalf("expected live value still 0 before first tick, got %v", i)
	}

	tt, err := th.Get(levelKey(), NewModifiers().WithTransitionTarget())
	if err != nil {
		t.Fatalf("get tt: %v", err)
	}
	if i, _ := tt.ToInt(); i != 99 {
		t.Fatalf("expected transition target 99, got %v", i)
	}
}

func TestDuplicateTraitRegistrationFails(t *testing.T) {
	th := New("t", RealClockForTest{})
	th.RegisterTrait(newLevelTrait())
	if err := th.RegisterTrait(newLevelTrait()); err == nil {
		t.Fatal("expected duplicate trait registration to fail")
	}
}

func TestPropertyNotFound(t *testing.T) {
	th := New("t", RealClockForTest{})
	th.RegisterTrait(newLevelTrait())
	missing := PropertyKey{Section: SectionState, Trait: "levl", Name: "nope", ValueType: value.KindInt}
	if _, err := th.Get(missing, nil); err == nil {
		t.Fatal("expected PropertyNotFound")
	}
}

func TestHostAndUnhostChild(t *testing.T) {
	parent := New("parent", RealClockForTest{})
	child := New("child", RealClockForTest{})
	if err := parent.Host("levl", "c1", child); err != nil {
		t.Fatalf("host: %v", err)
	}
	got, ok := parent.Child("levl", "c1")
	if !ok || got.ID() != "child" {
		t.Fatal("expected to find hosted child")
	}
	if err := parent.Host("levl", "c1", child); err == nil {
		t.Fatal("expected duplicate host to fail")
	}
	parent.Unhost("levl", "c1")
	if _, ok := parent.Child("levl", "c1"); ok {
		t.Fatal("expected child removed after unhost")
	}
}

func TestSnapshotAndApplySection(t *testing.T) {
	th := New("t", RealClockForTest{})
	trait := newLevelTrait()
	trait.level = value.Int(7)
	th.RegisterTrait(trait)

	snap, err := th.SnapshotSection(SectionState)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	th2 := New("t2", RealClockForTest{})
	trait2 := newLevelTrait()
	th2.RegisterTrait(trait2)
	if err := th2.ApplySection(SectionState, snap); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if trait2.level.AsIntRaw() != 7 {
		t.Fatalf("expected applied level 7, got %v", trait2.level)
	}
}

func TestApplySectionRejectsUnknownTrait(t *testing.T) {
	th := New("t", RealClockForTest{})
	th.RegisterTrait(newLevelTrait())
	bogus := value.Map(map[string]value.Value{
		"ghost": value.Map(map[string]value.Value{"x": value.Int(1)}),
	})
	if err := th.ApplySection(SectionState, bogus); err == nil {
		t.Fatal("expected CorruptPersistentState for unknown trait")
	}
}

func TestPropertyListenerNotifiedOnSet(t *testing.T) {
	th := New("t", RealClockForTest{})
	th.RegisterTrait(newLevelTrait())

	received := make(chan value.Value, 1)
	th.RegisterPropertyListener(levelKey(), InlineExecutor{}, func(ctx context.Context, v value.Value) {
		received <- v
	})

	if err := th.Set(levelKey(), value.Int(9), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	select {
	case v := <-received:
		if i, _ := v.ToInt(); i != 9 {
			t.Fatalf("expected notified value 9, got %v", i)
		}
	default:
		t.Fatal("expected listener notification")
	}
}

// RealClockForTest avoids importing the clock package's RealClock directly
// in every test case while keeping tests decoupled from wall-clock sleeps
// for the (non-transition) assertions above.
type RealClockForTest struct{}

func (RealClockForTest) Now() time.Time                         { return time.Unix(0, 0) }
func (RealClockForTest) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0).Add(d)
	return ch
}
