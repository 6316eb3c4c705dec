// Package thing implements the Splot thing model: property/method keys,
// property flags, the Thing container, the resource-link abstraction, and
// the state-property transition engine.
package thing

import (
	"fmt"
	"strings"

	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// Section partitions a thing's properties by purpose. Only SECTION_STATE
// properties participate in transitions and scenes.
//
// The original Java source carried a constructor bug that assigned
// SECTION_CONFIG's prefix to every Section variant; callers must not rely
// on a Section.Prefix()-style method. Only the canonical string constants
// below are part of the contract (spec §9, Open Question i).
type Section string

const (
	SectionState    Section = "s"
	SectionConfig   Section = "c"
	SectionMetadata Section = "m"
)

// Valid reports whether sec is one of the three recognized sections.
func (sec Section) Valid() bool {
	switch sec {
	case SectionState, SectionConfig, SectionMetadata:
		return true
	default:
		return false
	}
}

// ValueType names the declared Kind a PropertyKey carries, independent of
// any particular Value instance.
type ValueType = value.Kind

// PropertyKey identifies a single property on a thing: its section, the
// short trait id it belongs to, its property name, and its declared value
// type. Canonical string form is "<section>/<trait>/<prop>".
type PropertyKey struct {
	Section   Section
	Trait     string
	Name      string
	ValueType ValueType
}

// NewPropertyKey constructs a PropertyKey, validating the section tag.
func NewPropertyKey(sec Section, trait, name string, vt ValueType) (PropertyKey, error) {
	if !sec.Valid() {
		return PropertyKey{}, errors.InvalidValue("unknown section %q", string(sec))
	}
	if trait == "" || name == "" {
		return PropertyKey{}, errors.InvalidValue("property key requires trait and name")
	}
	return PropertyKey{Section: sec, Trait: trait, Name: name, ValueType: vt}, nil
}

// String renders the canonical "<section>/<trait>/<prop>" form.
func (k PropertyKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Section, k.Trait, k.Name)
}

// ParsePropertyKey parses the canonical wire form "<section>/<trait>/<prop>".
// The value type cannot be recovered from the string alone and is left
// zero (KindNull); callers that need a typed key must consult a Thing's
// trait registry to fill it in.
func ParsePropertyKey(s string) (PropertyKey, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 {
		return PropertyKey{}, errors.InvalidValue("malformed property key %q", s)
	}
	sec := Section(parts[0])
	if !sec.Valid() {
		return PropertyKey{}, errors.InvalidValue("malformed property key %q: unknown section", s)
	}
	if parts[1] == "" || parts[2] == "" {
		return PropertyKey{}, errors.InvalidValue("malformed property key %q", s)
	}
	return PropertyKey{Section: sec, Trait: parts[1], Name: parts[2]}, nil
}

// MethodKey identifies a trait method. Canonical wire form is
// "f/<trait>?<method>".
type MethodKey struct {
	Trait  string
	Method string
}

// String renders the canonical "f/<trait>?<method>" form.
func (k MethodKey) String() string {
	return fmt.Sprintf("f/%s?%s", k.Trait, k.Method)
}

// ParseMethodKey parses the canonical wire form "f/<trait>?<method>".
func ParseMethodKey(s string) (MethodKey, error) {
	if !strings.HasPrefix(s, "f/") {
		return MethodKey{}, errors.InvalidValue("malformed method key %q", s)
	}
	rest := s[2:]
	parts := strings.SplitN(rest, "?", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return MethodKey{}, errors.InvalidValue("malformed method key %q", s)
	}
	return MethodKey{Trait: parts[0], Method: parts[1]}, nil
}

// PropertyFlag enumerates the bit-flags attached to a property declaration.
type PropertyFlag uint16

const (
	FlagGet PropertyFlag = 1 << iota
	FlagSet
	FlagChangeNotify
	FlagGetRequired
	FlagSetRequired
	FlagReset // null-write resets the property
	FlagNoSave
	FlagNoTransition
	FlagNoIncrement
)

// Has reports whether all bits in want are set in f.
func (f PropertyFlag) Has(want PropertyFlag) bool { return f&want == want }

// ReadOnly, WriteOnly, ReadWrite, Constant and Enum are common flag
// aggregates used when declaring a trait's properties.
const (
	ReadOnly  PropertyFlag = FlagGet | FlagGetRequired
	WriteOnly PropertyFlag = FlagSet | FlagSetRequired
	ReadWrite PropertyFlag = FlagGet | FlagSet | FlagChangeNotify
	Constant  PropertyFlag = FlagGet
	Enum      PropertyFlag = FlagGet | FlagSet | FlagChangeNotify
)
