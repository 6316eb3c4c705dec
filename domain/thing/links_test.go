package thing

import (
	"context"
	"testing"

	"github.com/R3E-Network/splot/domain/value"
)

func TestPropertyResourceLinkFetchAndInvoke(t *testing.T) {
	th := New("t", RealClockForTest{})
	th.RegisterTrait(newLevelTrait())
	link := NewPropertyResourceLink(th, levelKey(), InlineExecutor{})

	v := value.Int(11)
	if err := link.Invoke(context.Background(), &v); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	got, err := link.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if i, _ := got.ToInt(); i != 11 {
		t.Fatalf("expected 11, got %v", i)
	}
}

func TestSectionResourceLinkCollapseUncollapse(t *testing.T) {
	th := New("t", RealClockForTest{})
	trait := newLevelTrait()
	trait.level = value.Int(3)
	th.RegisterTrait(trait)

	link, err := NewSectionResourceLink(th, SectionState)
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	flat, err := link.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	m, err := flat.ToMap()
	if err != nil {
		t.Fatalf("expected map: %v", err)
	}
	v, ok := m["s/levl/level"]
	if !ok {
		t.Fatal("expected collapsed key s/levl/level")
	}
	if i, _ := v.ToInt(); i != 3 {
		t.Fatalf("expected 3, got %v", i)
	}

	write := value.Map(map[string]value.Value{"s/levl/level": value.Int(9)})
	if err := link.Invoke(context.Background(), &write); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if trait.level.AsIntRaw() != 9 {
		t.Fatalf("expected level 9 after section write, got %v", trait.level)
	}
}

func TestSectionResourceLinkRejectsForeignSectionKey(t *testing.T) {
	th := New("t", RealClockForTest{})
	th.RegisterTrait(newLevelTrait())
	link, _ := NewSectionResourceLink(th, SectionState)

	write := value.Map(map[string]value.Value{"c/levl/level": value.Int(1)})
	if err := link.Invoke(context.Background(), &write); err == nil {
		t.Fatal("expected error writing foreign-section key")
	}
}
