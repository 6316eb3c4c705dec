package host

import (
	"sync"

	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/thing"
	"github.com/R3E-Network/splot/domain/value"
)

// OnOffTrait implements the "onof" trait (spec §8 scenario d): a single
// boolean on/off property every switchable thing exposes.
type OnOffTrait struct {
	thing.BaseTrait
	mu sync.Mutex
	on value.Value
}

// NewOnOffTrait builds an OnOffTrait starting powered off.
func NewOnOffTrait() *OnOffTrait {
	return &OnOffTrait{
		BaseTrait: thing.NewBaseTrait("onof", []thing.PropertyDescriptor{
			{Section: thing.SectionState, Name: "on", Type: value.KindBool, Flags: thing.ReadWrite},
		}, nil),
		on: value.Bool(false),
	}
}

func (t *OnOffTrait) Get(name string) (value.Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name == "on" {
		return t.on, nil
	}
	return value.Null(), nil
}

func (t *OnOffTrait) Set(name string, v value.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name == "on" {
		t.on = v
	}
	return nil
}

func (t *OnOffTrait) Invoke(string, value.Value) (value.Value, error) {
	return value.Null(), nil
}

// LevelTrait implements the "levl" trait: an integer 0-100 brightness level
// that Thing's transition engine animates across FlagNoTransition-free
// numeric properties (spec §3.4).
type LevelTrait struct {
	thing.BaseTrait
	mu    sync.Mutex
	level value.Value
}

// NewLevelTrait builds a LevelTrait starting at full brightness.
func NewLevelTrait() *LevelTrait {
	return &LevelTrait{
		BaseTrait: thing.NewBaseTrait("levl", []thing.PropertyDescriptor{
			{Section: thing.SectionState, Name: "level", Type: value.KindInt, Flags: thing.ReadWrite},
		}, nil),
		level: value.Int(100),
	}
}

func (t *LevelTrait) Get(name string) (value.Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name == "level" {
		return t.level, nil
	}
	return value.Null(), nil
}

func (t *LevelTrait) Set(name string, v value.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if name == "level" {
		t.level = v
	}
	return nil
}

func (t *LevelTrait) Invoke(string, value.Value) (value.Value, error) {
	return value.Null(), nil
}

// NewDimmableLight builds the worked example from spec §8 scenario d: a
// Thing with "onof" and "levl" traits, suitable for hosting behind
// splotd and driving through Pairing/Rule/Timer configs.
func NewDimmableLight(id string, clk clock.Clock) (*thing.Thing, error) {
	th := thing.New(id, clk)
	if err := th.RegisterTrait(NewOnOffTrait()); err != nil {
		return nil, err
	}
	if err := th.RegisterTrait(NewLevelTrait()); err != nil {
		return nil, err
	}
	return th, nil
}
