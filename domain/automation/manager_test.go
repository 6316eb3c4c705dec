package automation

import (
	"context"
	"testing"

	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/domain/value"
)

func TestManagerCreatePairingEnablesAndPropagates(t *testing.T) {
	src := newMemoryLink("src", value.Int(0))
	dst := newMemoryLink("dst", value.Int(0))
	mgr := &memoryManager{links: map[string]thing.ResourceLink{"src": src, "dst": dst}}
	m := NewManager(mgr, thing.InlineExecutor{}, clock.RealClock{}, &recordingCaller{})

	id, err := m.CreatePairing(context.Background(), PairingConfig{SourceURI: "src", DestURI: "dst", Push: true})
	if err != nil {
		t.Fatalf("create pairing: %v", err)
	}
	if _, err := m.Pairing(id); err != nil {
		t.Fatalf("lookup pairing: %v", err)
	}

	v := value.Int(9)
	src.Invoke(context.Background(), &v)
	if i, _ := dst.val.ToInt(); i != 9 {
		t.Fatalf("expected dest mirrored to 9, got %v", dst.val)
	}
}

func TestManagerCreateRuleAndDelete(t *testing.T) {
	onof := newMemoryLink("v", value.Bool(false))
	rmgr := &memoryManager{links: map[string]thing.ResourceLink{"v": onof}}
	caller := &recordingCaller{}
	m := NewManager(rmgr, thing.InlineExecutor{}, clock.RealClock{}, caller)

	id, err := m.CreateRule(context.Background(), RuleConfig{
		Conditions: []ConditionConfig{{URI: "v", Expr: "v"}},
		Match:      MatchAll,
		Actions:    []Action{{Path: "/x", Sync: SyncWait}},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	trueVal := value.Bool(true)
	onof.Invoke(context.Background(), &trueVal)

	r, err := m.Rule(id)
	if err != nil {
		t.Fatalf("lookup rule: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected rule fired once, got %d", r.Count())
	}

	if err := m.Delete(KindRule, id); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if _, err := m.Rule(id); err == nil {
		t.Fatal("expected rule lookup to fail after delete")
	}
}

func TestManagerIDsListsCreatedPrimitives(t *testing.T) {
	m := NewManager(&memoryManager{links: map[string]thing.ResourceLink{}}, thing.InlineExecutor{}, clock.RealClock{}, &recordingCaller{})
	id, err := m.CreateTimer(context.Background(), TimerConfig{Schedule: "100"})
	if err != nil {
		t.Fatalf("create timer: %v", err)
	}
	ids := m.IDs(KindTimer)
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected IDs to contain %q, got %v", id, ids)
	}
	tm, err := m.Timer(id)
	if err != nil {
		t.Fatalf("lookup timer: %v", err)
	}
	tm.Disable()
}

func TestManagerSnapshotRestoreRoundTrips(t *testing.T) {
	onof := newMemoryLink("v", value.Bool(false))
	links := map[string]thing.ResourceLink{"v": onof}
	mgr := &memoryManager{links: links}
	m := NewManager(mgr, thing.InlineExecutor{}, clock.RealClock{}, &recordingCaller{})

	if _, err := m.CreateRule(context.Background(), RuleConfig{
		Conditions: []ConditionConfig{{URI: "v", Expr: "v"}},
		Match:      MatchAll,
		Actions:    []Action{{Path: "/x", Sync: SyncWait, Description: "notify"}},
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if _, err := m.CreateTimer(context.Background(), TimerConfig{Schedule: "50", AutoReset: true}); err != nil {
		t.Fatalf("create timer: %v", err)
	}

	snap := m.Snapshot()

	restored := NewManager(mgr, thing.InlineExecutor{}, clock.RealClock{}, &recordingCaller{})
	if err := restored.Restore(context.Background(), snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if len(restored.IDs(KindRule)) != 1 {
		t.Fatalf("expected 1 restored rule, got %d", len(restored.IDs(KindRule)))
	}
	if len(restored.IDs(KindTimer)) != 1 {
		t.Fatalf("expected 1 restored timer, got %d", len(restored.IDs(KindTimer)))
	}
	for _, id := range restored.IDs(KindTimer) {
		tm, err := restored.Timer(id)
		if err != nil {
			t.Fatalf("lookup restored timer: %v", err)
		}
		tm.Disable()
	}
}

// onofTrait is a minimal boolean state trait used to drive a real
// thing.Registry-backed Rule condition in the end-to-end test below.
type onofTrait struct {
	thing.BaseTrait
	on bool
}

func newOnofTrait() *onofTrait {
	return &onofTrait{
		BaseTrait: thing.NewBaseTrait("onof", []thing.PropertyDescriptor{
			{Section: thing.SectionState, Name: "v", Type: value.KindBool, Flags: thing.ReadWrite},
		}, nil),
	}
}

func (o *onofTrait) Get(name string) (value.Value, error) { return value.Bool(o.on), nil }

func (o *onofTrait) Set(name string, v value.Value) error {
	b, err := v.ToBool()
	if err != nil {
		return err
	}
	o.on = b
	return nil
}

func (o *onofTrait) Invoke(method string, args value.Value) (value.Value, error) {
	return value.Null(), nil
}

// TestManagerResolveFunctionEnablesDisablesTimerViaRuleAction is the spec
// §8 scenario d worked example end to end: a Rule's action reconfigures a
// sibling Timer by writing its enabled-state property at
// "<thingID>/f/tmgr/<timerID>/s/enab/v", reached through a real
// thing.Registry rather than a test-only in-memory stand-in.
func TestManagerResolveFunctionEnablesDisablesTimerViaRuleAction(t *testing.T) {
	registry := thing.NewRegistry(nil)
	th := thing.New("3", clock.RealClock{})
	if err := th.RegisterTrait(newOnofTrait()); err != nil {
		t.Fatalf("register trait: %v", err)
	}
	registry.Host(th)

	m := NewManager(registry, thing.InlineExecutor{}, clock.RealClock{}, &recordingCaller{})
	registry.HostFunctions("1", m)

	timerID, err := m.CreateTimer(context.Background(), TimerConfig{Schedule: "1000"})
	if err != nil {
		t.Fatalf("create timer: %v", err)
	}
	tm, err := m.Timer(timerID)
	if err != nil {
		t.Fatalf("lookup timer: %v", err)
	}
	if tm.State() != TimerArmed {
		t.Fatalf("expected newly created timer armed, got %v", tm.State())
	}

	ruleID, err := m.CreateRule(context.Background(), RuleConfig{
		Conditions: []ConditionConfig{{URI: "3/s/onof/v", Expr: "v"}},
		Match:      MatchAll,
		Actions: []Action{{
			Path:    "1/f/tmgr/" + timerID + "/s/enab/v",
			Method:  "PUT",
			Body:    value.Bool(false),
			HasBody: true,
			Sync:    SyncWait,
		}},
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	onofKey := thing.PropertyKey{Section: thing.SectionState, Trait: "onof", Name: "v"}
	if err := th.Set(onofKey, value.Bool(true), nil); err != nil {
		t.Fatalf("flip onof: %v", err)
	}

	r, err := m.Rule(ruleID)
	if err != nil {
		t.Fatalf("lookup rule: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected rule to fire exactly once, got %d", r.Count())
	}
	if tm.State() != TimerDisabled {
		t.Fatalf("expected the rule's action to disable the timer via the f/tmgr address space, got %v", tm.State())
	}
}

func TestManagerRestoreRejectsMalformedSnapshot(t *testing.T) {
	m := NewManager(&memoryManager{links: map[string]thing.ResourceLink{}}, thing.InlineExecutor{}, clock.RealClock{}, &recordingCaller{})
	bad := value.Map(map[string]value.Value{
		string(KindRule): value.Text("not-a-map"),
	})
	if err := m.Restore(context.Background(), bad); err == nil {
		t.Fatal("expected restore to fail on malformed rule group")
	}
}
