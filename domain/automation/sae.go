package automation

import (
	"math"
	"strconv"
	"strings"

	"github.com/R3E-Network/splot/domain/value"
	"github.com/R3E-Network/splot/infrastructure/errors"
)

// opcode enumerates the kinds of compiled SAE instructions.
type opcode int

const (
	opPushNum opcode = iota
	opPushText
	opBuildArray
	opBuildMap
	opVar
	opOperator
	opJumpIfFalse
	opJump
)

// instruction is one compiled step of a Program.
type instruction struct {
	op       opcode
	num      float64
	text     string
	n        int // array size for opBuildArray, jump target for opJumpIfFalse/opJump
	operator string
}

// Program is a compiled SAE expression: a linear opcode vector with
// resolved IF/ELSE/ENDIF jump targets (spec §4.1 "Compilation").
type Program struct {
	Source       string
	instructions []instruction
}

var knownVars = map[string]bool{
	"v": true, "v_l": true, "c": true,
	"rtc.y": true, "rtc.dow": true, "rtc.dom": true, "rtc.tod": true,
	"rtc.moy": true, "rtc.awm": true, "rtc.wom": true, "rtc.woy": true,
}

var knownOperators = map[string]bool{
	"DUP": true, "DROP": true, "SWAP": true, "OVER": true, "ROT": true,
	"+": true, "-": true, "*": true, "/": true, "%": true, "^": true,
	"NEG": true, "ABS": true, "FLOOR": true, "CEIL": true, "ROUND": true,
	"SIN": true, "COS": true, "TAN": true, "ASIN": true, "ACOS": true, "ATAN": true,
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"&&": true, "||": true, "!": true,
	"POLY2": true, "POLY3": true,
	"H>S": true, "D>S": true,
	"POP": true, "PUSH": true, "GET": true, "PUT": true,
	"STOP": true,
}

// controlFrame tracks an unresolved IF, resolved once the matching ELSE or
// ENDIF is seen.
type controlFrame struct {
	ifIdx   int
	elseIdx int // -1 until an ELSE is seen
}

// Compile parses a whitespace-separated SAE source string into a Program.
// A single linear pass emits the opcode vector; IF/ELSE/ENDIF are resolved
// via an auxiliary stack of jump targets. Unknown tokens and mismatched
// control tokens fail with SAECompile, reporting the token and its
// position (spec §4.1).
func Compile(source string) (*Program, error) {
	tokens := strings.Fields(source)
	instrs := make([]instruction, 0, len(tokens))
	var ctrl []controlFrame

	for pos, tok := range tokens {
		switch {
		case tok == "IF":
			instrs = append(instrs, instruction{op: opJumpIfFalse})
			ctrl = append(ctrl, controlFrame{ifIdx: len(instrs) - 1, elseIdx: -1})

		case tok == "ELSE":
			if len(ctrl) == 0 {
				return nil, errors.SAECompile(tok, pos)
			}
			frame := &ctrl[len(ctrl)-1]
			if frame.elseIdx != -1 {
				return nil, errors.SAECompile(tok, pos)
			}
			instrs = append(instrs, instruction{op: opJump})
			frame.elseIdx = len(instrs) - 1
			instrs[frame.ifIdx].n = len(instrs)

		case tok == "ENDIF":
			if len(ctrl) == 0 {
				return nil, errors.SAECompile(tok, pos)
			}
			frame := ctrl[len(ctrl)-1]
			ctrl = ctrl[:len(ctrl)-1]
			target := len(instrs)
			if frame.elseIdx != -1 {
				instrs[frame.elseIdx].n = target
			} else {
				instrs[frame.ifIdx].n = target
			}

		case strings.HasPrefix(tok, ":") && len(tok) > 1:
			instrs = append(instrs, instruction{op: opPushText, text: tok[1:]})

		case isArrayCtor(tok):
			instrs = append(instrs, instruction{op: opBuildArray, n: arrayCtorSize(tok)})

		case tok == "{}":
			instrs = append(instrs, instruction{op: opBuildMap})

		case knownVars[tok]:
			instrs = append(instrs, instruction{op: opVar, text: tok})

		case knownOperators[tok]:
			instrs = append(instrs, instruction{op: opOperator, operator: tok})

		default:
			if f, err := strconv.ParseFloat(tok, 64); err == nil {
				instrs = append(instrs, instruction{op: opPushNum, num: f})
				continue
			}
			return nil, errors.SAECompile(tok, pos)
		}
	}

	if len(ctrl) > 0 {
		return nil, errors.SAECompile("ENDIF", len(tokens))
	}

	return &Program{Source: source, instructions: instrs}, nil
}

func isArrayCtor(tok string) bool {
	switch tok {
	case "[]", "[1]", "[2]", "[3]", "[4]":
		return true
	default:
		return false
	}
}

func arrayCtorSize(tok string) int {
	switch tok {
	case "[]":
		return 0
	case "[1]":
		return 1
	case "[2]":
		return 2
	case "[3]":
		return 3
	case "[4]":
		return 4
	default:
		return 0
	}
}

// Evaluate runs program against input as the initial stack value and ctx's
// variable bindings, returning the top of the final stack. An empty final
// stack yields the STOP sentinel (spec §4.1 "Contract"). Any operator that
// cannot proceed (type mismatch, underflow) fails the whole evaluation.
func Evaluate(program *Program, input value.Value, ctx Context) (value.Value, error) {
	stack := []value.Value{input}
	pc := 0
	instrs := program.instructions

	for pc < len(instrs) {
		in := instrs[pc]
		switch in.op {
		case opPushNum:
			stack = append(stack, value.Float(in.num))
			pc++

		case opPushText:
			stack = append(stack, value.Text(in.text))
			pc++

		case opBuildArray:
			if len(stack) < in.n {
				return value.Value{}, errors.SAEStackUnderflow("array-constructor")
			}
			elems := make([]value.Value, in.n)
			copy(elems, stack[len(stack)-in.n:])
			stack = stack[:len(stack)-in.n]
			stack = append(stack, value.Array(elems...))
			pc++

		case opBuildMap:
			stack = append(stack, value.Map(nil))
			pc++

		case opVar:
			stack = append(stack, resolveVar(in.text, ctx))
			pc++

		case opOperator:
			newStack, err := applyOperator(in.operator, stack)
			if err != nil {
				return value.Value{}, err
			}
			stack = newStack
			pc++

		case opJumpIfFalse:
			if len(stack) == 0 {
				return value.Value{}, errors.SAEStackUnderflow("IF")
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			b, err := top.ToBool()
			if err != nil {
				return value.Value{}, errors.SAEInvalidTypeForOperator("IF")
			}
			if b {
				pc++
			} else {
				pc = in.n
			}

		case opJump:
			pc = in.n
		}
	}

	if len(stack) == 0 {
		return value.Stop(), nil
	}
	return stack[len(stack)-1], nil
}

func resolveVar(name string, ctx Context) value.Value {
	switch name {
	case "v":
		return ctx.V
	case "v_l":
		return ctx.VL
	case "c":
		return value.Int(ctx.C)
	case "rtc.y":
		return value.Int(int64(ctx.RTC.Year))
	case "rtc.dow":
		return value.Int(int64(ctx.RTC.DayOfWeek))
	case "rtc.dom":
		return value.Int(int64(ctx.RTC.DayOfMonth))
	case "rtc.tod":
		return value.Float(ctx.RTC.TimeOfDay)
	case "rtc.moy":
		return value.Int(int64(ctx.RTC.MonthOfYear))
	case "rtc.awm":
		return value.Int(int64(ctx.RTC.AlignedWeekOfMonth))
	case "rtc.wom":
		return value.Int(int64(ctx.RTC.WeekOfMonth))
	case "rtc.woy":
		return value.Int(int64(ctx.RTC.WeekOfYear))
	default:
		return value.Null()
	}
}

const turn = 2 * math.Pi

func pop(stack []value.Value) (value.Value, []value.Value, error) {
	if len(stack) == 0 {
		return value.Value{}, nil, errors.SAEStackUnderflow("pop")
	}
	return stack[len(stack)-1], stack[:len(stack)-1], nil
}

func popFloat(stack []value.Value, op string) (float64, []value.Value, error) {
	v, rest, err := pop(stack)
	if err != nil {
		return 0, nil, err
	}
	f, err := v.ToFloat()
	if err != nil {
		return 0, nil, errors.SAEInvalidTypeForOperator(op)
	}
	return f, rest, nil
}

// applyOperator pops the operands an operator needs from stack and returns
// the stack with its result pushed. POP/PUSH/GET/PUT operate on arrays and
// maps; everything else is numeric, boolean, or pure stack shuffling.
func applyOperator(op string, stack []value.Value) ([]value.Value, error) {
	switch op {
	case "STOP":
		return append(stack, value.Stop()), nil

	case "DUP":
		top, _, err := pop(stack)
		if err != nil {
			return nil, err
		}
		return append(stack, top), nil

	case "DROP":
		_, rest, err := pop(stack)
		if err != nil {
			return nil, err
		}
		return rest, nil

	case "SWAP":
		if len(stack) < 2 {
			return nil, errors.SAEStackUnderflow(op)
		}
		n := len(stack)
		stack[n-1], stack[n-2] = stack[n-2], stack[n-1]
		return stack, nil

	case "OVER":
		if len(stack) < 2 {
			return nil, errors.SAEStackUnderflow(op)
		}
		return append(stack, stack[len(stack)-2]), nil

	case "ROT":
		if len(stack) < 3 {
			return nil, errors.SAEStackUnderflow(op)
		}
		n := len(stack)
		a, b, c := stack[n-3], stack[n-2], stack[n-1]
		stack[n-3], stack[n-2], stack[n-1] = b, c, a
		return stack, nil

	case "+", "-", "*", "/", "%", "^":
		return applyArithmetic(op, stack)

	case "NEG", "ABS", "FLOOR", "CEIL", "ROUND":
		return applyUnaryNumeric(op, stack)

	case "SIN", "COS", "TAN", "ASIN", "ACOS", "ATAN":
		return applyTrig(op, stack)

	case "==", "!=":
		b, rest, err := pop(stack)
		if err != nil {
			return nil, err
		}
		a, rest, err := pop(rest)
		if err != nil {
			return nil, err
		}
		eq := value.Equal(a, b)
		if op == "!=" {
			eq = !eq
		}
		return append(rest, value.Bool(eq)), nil

	case "<", "<=", ">", ">=":
		return applyComparison(op, stack)

	case "&&", "||":
		return applyLogicBinary(op, stack)

	case "!":
		v, rest, err := pop(stack)
		if err != nil {
			return nil, err
		}
		b, err := v.ToBool()
		if err != nil {
			return nil, errors.SAEInvalidTypeForOperator(op)
		}
		return append(rest, value.Bool(!b)), nil

	case "POLY2":
		return applyPoly(2, stack)

	case "POLY3":
		return applyPoly(3, stack)

	case "H>S":
		f, rest, err := popFloat(stack, op)
		if err != nil {
			return nil, err
		}
		return append(rest, value.Float(f*3600)), nil

	case "D>S":
		f, rest, err := popFloat(stack, op)
		if err != nil {
			return nil, err
		}
		return append(rest, value.Float(f*86400)), nil

	case "POP":
		return applyPop(stack)

	case "PUSH":
		return applyPush(stack)

	case "GET":
		return applyGet(stack)

	case "PUT":
		return applyPut(stack)

	default:
		return nil, errors.SAECompile(op, -1)
	}
}

func bothInt(a, b value.Value) bool {
	return a.Kind() == value.KindInt && b.Kind() == value.KindInt
}

func applyArithmetic(op string, stack []value.Value) ([]value.Value, error) {
	b, rest, err := pop(stack)
	if err != nil {
		return nil, err
	}
	a, rest, err := pop(rest)
	if err != nil {
		return nil, err
	}
	af, err := a.ToFloat()
	if err != nil {
		return nil, errors.SAEInvalidTypeForOperator(op)
	}
	bf, err := b.ToFloat()
	if err != nil {
		return nil, errors.SAEInvalidTypeForOperator(op)
	}

	var result float64
	switch op {
	case "+":
		result = af + bf
	case "-":
		result = af - bf
	case "*":
		result = af * bf
	case "/":
		if bf == 0 {
			return nil, errors.SAEInvalidTypeForOperator(op)
		}
		result = af / bf
	case "%":
		if bf == 0 {
			return nil, errors.SAEInvalidTypeForOperator(op)
		}
		result = math.Mod(af, bf)
	case "^":
		result = math.Pow(af, bf)
	}

	if bothInt(a, b) && (op == "+" || op == "-" || op == "*" || op == "%") {
		return append(rest, value.Int(int64(result))), nil
	}
	return append(rest, value.Float(result)), nil
}

func applyUnaryNumeric(op string, stack []value.Value) ([]value.Value, error) {
	v, rest, err := pop(stack)
	if err != nil {
		return nil, err
	}
	f, err := v.ToFloat()
	if err != nil {
		return nil, errors.SAEInvalidTypeForOperator(op)
	}
	var result float64
	switch op {
	case "NEG":
		result = -f
	case "ABS":
		result = math.Abs(f)
	case "FLOOR":
		result = math.Floor(f)
	case "CEIL":
		result = math.Ceil(f)
	case "ROUND":
		result = math.Round(f)
	}
	if v.Kind() == value.KindInt && op == "NEG" {
		return append(rest, value.Int(int64(result))), nil
	}
	return append(rest, value.Float(result)), nil
}

// applyTrig evaluates trig functions with arguments in turns, not radians
// (spec §4.1): one full turn is 2π radians.
func applyTrig(op string, stack []value.Value) ([]value.Value, error) {
	f, rest, err := popFloat(stack, op)
	if err != nil {
		return nil, err
	}
	var result float64
	switch op {
	case "SIN":
		result = math.Sin(f * turn)
	case "COS":
		result = math.Cos(f * turn)
	case "TAN":
		result = math.Tan(f * turn)
	case "ASIN":
		result = math.Asin(f) / turn
	case "ACOS":
		result = math.Acos(f) / turn
	case "ATAN":
		result = math.Atan(f) / turn
	}
	return append(rest, value.Float(result)), nil
}

func applyComparison(op string, stack []value.Value) ([]value.Value, error) {
	bf, rest, err := popFloat(stack, op)
	if err != nil {
		return nil, err
	}
	af, rest, err := popFloat(rest, op)
	if err != nil {
		return nil, err
	}
	var result bool
	switch op {
	case "<":
		result = af < bf
	case "<=":
		result = af <= bf
	case ">":
		result = af > bf
	case ">=":
		result = af >= bf
	}
	return append(rest, value.Bool(result)), nil
}

func applyLogicBinary(op string, stack []value.Value) ([]value.Value, error) {
	b, rest, err := pop(stack)
	if err != nil {
		return nil, err
	}
	a, rest, err := pop(rest)
	if err != nil {
		return nil, err
	}
	ab, err := a.ToBool()
	if err != nil {
		return nil, errors.SAEInvalidTypeForOperator(op)
	}
	bb, err := b.ToBool()
	if err != nil {
		return nil, errors.SAEInvalidTypeForOperator(op)
	}
	var result bool
	if op == "&&" {
		result = ab && bb
	} else {
		result = ab || bb
	}
	return append(rest, value.Bool(result)), nil
}

// applyPoly evaluates an n-degree polynomial: pops the constant term first
// (it was pushed last), then each coefficient up to the degree-n term, then
// the input x, computing c_n*x^n + ... + c_1*x + c_0.
func applyPoly(degree int, stack []value.Value) ([]value.Value, error) {
	coeffs := make([]float64, degree+1)
	rest := stack
	var err error
	for i := 0; i <= degree; i++ {
		coeffs[i], rest, err = popFloat(rest, "POLY")
		if err != nil {
			return nil, err
		}
	}
	x, rest, err := popFloat(rest, "POLY")
	if err != nil {
		return nil, err
	}
	result := 0.0
	for i := degree; i >= 0; i-- {
		result += coeffs[i] * math.Pow(x, float64(i))
	}
	return append(rest, value.Float(result)), nil
}

// applyPop removes the last element from the array on top of the stack,
// leaving the shortened array below the removed element (top of stack
// after POP is the removed element) — the inverse of PUSH's expected
// input layout, so "POP ... PUSH" round-trips.
func applyPop(stack []value.Value) ([]value.Value, error) {
	top, rest, err := pop(stack)
	if err != nil {
		return nil, err
	}
	shortened, last, err := top.PopLast()
	if err != nil {
		return nil, errors.SAEInvalidTypeForOperator("POP")
	}
	return append(rest, shortened, last), nil
}

// applyPush pops an element and, below it, an array, pushing the array
// with the element appended.
func applyPush(stack []value.Value) ([]value.Value, error) {
	elem, rest, err := pop(stack)
	if err != nil {
		return nil, err
	}
	arrVal, rest, err := pop(rest)
	if err != nil {
		return nil, err
	}
	if _, err := arrVal.ToArray(); err != nil {
		return nil, errors.SAEInvalidTypeForOperator("PUSH")
	}
	return append(rest, arrVal.Push(elem)), nil
}

// applyGet pops a key and, below it, a map, pushing map[key] (null if
// absent).
func applyGet(stack []value.Value) ([]value.Value, error) {
	key, rest, err := pop(stack)
	if err != nil {
		return nil, err
	}
	keyText, err := key.ToText()
	if err != nil {
		return nil, errors.SAEInvalidTypeForOperator("GET")
	}
	m, rest, err := pop(rest)
	if err != nil {
		return nil, err
	}
	if _, err := m.ToMap(); err != nil {
		return nil, errors.SAEInvalidTypeForOperator("GET")
	}
	return append(rest, m.Get(keyText)), nil
}

// applyPut pops a key, a value, and a map (in that order), pushing a copy
// of the map with map[key] = value set.
func applyPut(stack []value.Value) ([]value.Value, error) {
	key, rest, err := pop(stack)
	if err != nil {
		return nil, err
	}
	keyText, err := key.ToText()
	if err != nil {
		return nil, errors.SAEInvalidTypeForOperator("PUT")
	}
	val, rest, err := pop(rest)
	if err != nil {
		return nil, err
	}
	m, rest, err := pop(rest)
	if err != nil {
		return nil, err
	}
	if _, err := m.ToMap(); err != nil {
		return nil, errors.SAEInvalidTypeForOperator("PUT")
	}
	return append(rest, m.Put(keyText, val)), nil
}
