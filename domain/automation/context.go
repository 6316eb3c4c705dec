// Package automation implements the Splot Automation Expressions (SAE)
// compiler and stack VM, the action dispatcher, and the Pairing/Rule/Timer
// primitives that use them (spec §2, §4).
package automation

import (
	"github.com/R3E-Network/splot/domain/clock"
	"github.com/R3E-Network/splot/domain/value"
)

// Context carries the variable bindings an SAE program evaluates against:
// the propagated value pair (v, v_l), the owning primitive's fire count
// (c), and the current RTC snapshot (spec §4.1).
type Context struct {
	V   value.Value
	VL  value.Value
	C   int64
	RTC clock.RTC
}
