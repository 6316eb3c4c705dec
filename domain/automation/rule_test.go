package automation

import (
	"context"
	"testing"

	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/domain/value"
)

func TestRuleFiresOnRisingEdgeAllMatch(t *testing.T) {
	onof := newMemoryLink("/3/s/onof/v", value.Bool(false))
	mgr := &memoryManager{links: map[string]thing.ResourceLink{"/3/s/onof/v": onof}}
	caller := &recordingCaller{}
	dispatcher := NewDispatcher(caller, nil, nil)

	rule, err := NewRule(RuleConfig{
		Conditions: []ConditionConfig{{URI: "/3/s/onof/v", Expr: "v_l ! &&"}},
		Match:      MatchAll,
		Actions:    []Action{{Path: "/1/f/tmgr/2/s/enab/v", Sync: SyncWait}},
	}, dispatcher, clock.RealClock{})
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	if err := rule.Enable(context.Background(), mgr, thing.InlineExecutor{}); err != nil {
		t.Fatalf("enable: %v", err)
	}

	trueVal := value.Bool(true)
	onof.Invoke(context.Background(), &trueVal)

	if rule.Count() != 1 {
		t.Fatalf("expected rule to fire once, count=%d", rule.Count())
	}
	if len(caller.calls) != 1 {
		t.Fatalf("expected one dispatched action, got %v", caller.calls)
	}
}

func TestRuleAnyMatchFiresOnFirstTrueCondition(t *testing.T) {
	a := newMemoryLink("a", value.Bool(false))
	b := newMemoryLink("b", value.Bool(false))
	mgr := &memoryManager{links: map[string]thing.ResourceLink{"a": a, "b": b}}
	caller := &recordingCaller{}
	dispatcher := NewDispatcher(caller, nil, nil)

	rule, err := NewRule(RuleConfig{
		Conditions: []ConditionConfig{
			{URI: "a", Expr: "v"},
			{URI: "b", Expr: "v"},
		},
		Match:   MatchAny,
		Actions: []Action{{Path: "/x", Sync: SyncWait}},
	}, dispatcher, clock.RealClock{})
	if err != nil {
		t.Fatalf("new rule: %v", err)
	}
	rule.Enable(context.Background(), mgr, thing.InlineExecutor{})

	trueVal := value.Bool(true)
	a.Invoke(context.Background(), &trueVal)

	if rule.Count() != 1 {
		t.Fatalf("expected rule to fire once, count=%d", rule.Count())
	}
}

func TestRuleCountResetsToZero(t *testing.T) {
	onof := newMemoryLink("v", value.Bool(false))
	mgr := &memoryManager{links: map[string]thing.ResourceLink{"v": onof}}
	dispatcher := NewDispatcher(&recordingCaller{}, nil, nil)

	rule, _ := NewRule(RuleConfig{
		Conditions: []ConditionConfig{{URI: "v", Expr: "v"}},
		Match:      MatchAll,
		Actions:    nil,
	}, dispatcher, clock.RealClock{})
	rule.Enable(context.Background(), mgr, thing.InlineExecutor{})

	trueVal := value.Bool(true)
	onof.Invoke(context.Background(), &trueVal)
	if rule.Count() != 1 {
		t.Fatalf("expected count 1, got %d", rule.Count())
	}
	rule.ResetCount()
	if rule.Count() != 0 {
		t.Fatal("expected count reset to 0")
	}
}
