package thing

import (
	"github.com/R3E-Network/splot/domain/value"
)

// PropertyDescriptor declares one property a TraitImpl supports.
type PropertyDescriptor struct {
	Section Section
	Name    string
	Type    ValueType
	Flags   PropertyFlag
}

// MethodDescriptor declares one method a TraitImpl supports.
type MethodDescriptor struct {
	Name string
}

// TraitImpl is the contract a trait implementation supplies to a Thing: the
// properties/methods it declares, and getter/setter/method-invoke closures.
// This replaces the original "AbstractLocalTrait" class hierarchy (spec §9)
// with a plain interface a Thing holds as a set — no inheritance involved.
type TraitImpl interface {
	// ShortID is the trait's short identifier, e.g. "onof", "levl".
	ShortID() string

	// Properties lists the properties this trait declares.
	Properties() []PropertyDescriptor

	// Methods lists the methods this trait declares.
	Methods() []MethodDescriptor

	// Get returns the current value of a declared property.
	Get(name string) (value.Value, error)

	// Set applies a new value to a declared property. The trait is
	// responsible for validating the value; Thing handles transitions,
	// increment/toggle/insert/remove modifiers, and change notification
	// around this call.
	Set(name string, v value.Value) error

	// Invoke calls a declared method with an argument map, returning a
	// result value (Null if the method has no return value).
	Invoke(method string, args value.Value) (value.Value, error)
}

// BaseTrait is an embeddable helper that implements Properties/Methods from
// a static declaration, so concrete traits only need to implement Get/Set/
// Invoke for the properties/methods that actually exist.
type BaseTrait struct {
	id    string
	props []PropertyDescriptor
	meths []MethodDescriptor
}

// NewBaseTrait constructs a BaseTrait with the given short id and
// declarations.
func NewBaseTrait(id string, props []PropertyDescriptor, meths []MethodDescriptor) BaseTrait {
	return BaseTrait{id: id, props: props, meths: meths}
}

func (b BaseTrait) ShortID() string                     { return b.id }
func (b BaseTrait) Properties() []PropertyDescriptor    { return b.props }
func (b BaseTrait) Methods() []MethodDescriptor         { return b.meths }

// PropertyFlagsFor looks up the declared flags for a property name, or 0
// if not declared.
func (b BaseTrait) PropertyFlagsFor(name string) PropertyFlag {
	for _, p := range b.props {
		if p.Name == name {
			return p.Flags
		}
	}
	return 0
}
