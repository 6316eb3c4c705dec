package host

import (
	"testing"

	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/domain/value"
)

func TestNewDimmableLightRegistersBothTraits(t *testing.T) {
	light, err := NewDimmableLight("light1", clock.RealClock{})
	if err != nil {
		t.Fatalf("NewDimmableLight() error = %v", err)
	}

	keys := light.SupportedKeys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(keys))
	}

	var sawOn, sawLevel bool
	for _, k := range keys {
		switch {
		case k.Trait == "onof" && k.Name == "on":
			sawOn = true
		case k.Trait == "levl" && k.Name == "level":
			sawLevel = true
		}
	}
	if !sawOn || !sawLevel {
		t.Fatalf("expected onof/on and levl/level properties, got %v", keys)
	}
}

func TestOnOffTraitGetSet(t *testing.T) {
	tr := NewOnOffTrait()
	if err := tr.Set("on", value.Bool(true)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := tr.Get("on")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	b, _ := got.ToBool()
	if !b {
		t.Fatal("expected on=true")
	}
}

func TestLevelTraitDefaultsToFullBrightness(t *testing.T) {
	tr := NewLevelTrait()
	got, err := tr.Get("level")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	i, _ := got.ToInt()
	if i != 100 {
		t.Fatalf("expected default level 100, got %d", i)
	}
}

var _ thing.TraitImpl = (*OnOffTrait)(nil)
var _ thing.TraitImpl = (*LevelTrait)(nil)
