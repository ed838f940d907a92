// Package expr is a small arithmetic tree that renders to the engine's
// expression language and can be evaluated in Go for the same inputs.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Expr is a node of the expression tree.
type Expr interface {
	write(sb *strings.Builder, timeVar string)
	eval(env Env) float64
}

// Env binds variable values for Eval. The time variable is read from "t".
type Env map[string]float64

// Render serializes e, spelling the clock variable as timeVar
// ("t" for overlay/scale/rotate, "T" for geq).
func Render(e Expr, timeVar string) string {
	var sb strings.Builder
	e.write(&sb, timeVar)
	return sb.String()
}

// Eval evaluates e with the given bindings.
func Eval(e Expr, env Env) float64 {
	return e.eval(env)
}

// At evaluates e at clock value t.
func At(e Expr, t float64) float64 {
	return e.eval(Env{"t": t})
}

type constant float64

func Const(v float64) Expr { return constant(v) }

func (c constant) write(sb *strings.Builder, _ string) {
	s := strconv.FormatFloat(float64(c), 'f', -1, 64)
	if c < 0 {
		s = "(" + s + ")"
	}
	sb.WriteString(s)
}

func (c constant) eval(Env) float64 { return float64(c) }

// IsConst reports whether e is the constant v.
func IsConst(e Expr, v float64) bool {
	c, ok := e.(constant)
	return ok && float64(c) == v
}

type clock struct{}

// T is the frame timestamp in seconds.
var T Expr = clock{}

func (clock) write(sb *strings.Builder, timeVar string) { sb.WriteString(timeVar) }
func (clock) eval(env Env) float64                      { return env["t"] }

type variable string

// Var references a filter-provided variable such as overlay_w.
func Var(name string) Expr { return variable(name) }

func (v variable) write(sb *strings.Builder, _ string) { sb.WriteString(string(v)) }
func (v variable) eval(env Env) float64                { return env[string(v)] }

type nary struct {
	op    byte
	terms []Expr
}

func (n nary) write(sb *strings.Builder, timeVar string) {
	sb.WriteByte('(')
	for i, term := range n.terms {
		if i > 0 {
			sb.WriteByte(n.op)
		}
		term.write(sb, timeVar)
	}
	sb.WriteByte(')')
}

func (n nary) eval(env Env) float64 {
	acc := n.terms[0].eval(env)
	for _, term := range n.terms[1:] {
		v := term.eval(env)
		switch n.op {
		case '+':
			acc += v
		case '-':
			acc -= v
		case '*':
			acc *= v
		case '/':
			acc /= v
		}
	}
	return acc
}

// Add sums terms, dropping zero constants.
func Add(terms ...Expr) Expr {
	kept := make([]Expr, 0, len(terms))
	for _, term := range terms {
		if term == nil || IsConst(term, 0) {
			continue
		}
		kept = append(kept, term)
	}
	switch len(kept) {
	case 0:
		return Const(0)
	case 1:
		return kept[0]
	}
	return nary{op: '+', terms: kept}
}

func Sub(a, b Expr) Expr {
	if IsConst(b, 0) {
		return a
	}
	return nary{op: '-', terms: []Expr{a, b}}
}

// Mul multiplies factors, dropping unit constants.
func Mul(factors ...Expr) Expr {
	kept := make([]Expr, 0, len(factors))
	for _, f := range factors {
		if IsConst(f, 0) {
			return Const(0)
		}
		if IsConst(f, 1) {
			continue
		}
		kept = append(kept, f)
	}
	switch len(kept) {
	case 0:
		return Const(1)
	case 1:
		return kept[0]
	}
	return nary{op: '*', terms: kept}
}

func Div(a, b Expr) Expr {
	if IsConst(b, 1) {
		return a
	}
	return nary{op: '/', terms: []Expr{a, b}}
}

type call struct {
	name string
	args []Expr
	fn   func(args []float64) float64
}

func (c call) write(sb *strings.Builder, timeVar string) {
	sb.WriteString(c.name)
	sb.WriteByte('(')
	for i, a := range c.args {
		if i > 0 {
			sb.WriteByte(',')
		}
		a.write(sb, timeVar)
	}
	sb.WriteByte(')')
}

func (c call) eval(env Env) float64 {
	vals := make([]float64, len(c.args))
	for i, a := range c.args {
		vals[i] = a.eval(env)
	}
	return c.fn(vals)
}

func Sin(x Expr) Expr {
	return call{name: "sin", args: []Expr{x}, fn: func(v []float64) float64 { return math.Sin(v[0]) }}
}

func Abs(x Expr) Expr {
	return call{name: "abs", args: []Expr{x}, fn: func(v []float64) float64 { return math.Abs(v[0]) }}
}

// Clip bounds x to [lo, hi].
func Clip(x, lo, hi Expr) Expr {
	return call{name: "clip", args: []Expr{x, lo, hi}, fn: func(v []float64) float64 {
		return math.Max(v[1], math.Min(v[2], v[0]))
	}}
}

// Between is 1 when lo <= x <= hi, else 0.
func Between(x, lo, hi Expr) Expr {
	return call{name: "between", args: []Expr{x, lo, hi}, fn: func(v []float64) float64 {
		if v[0] >= v[1] && v[0] <= v[2] {
			return 1
		}
		return 0
	}}
}

// If yields then when cond is non-zero, otherwise els.
func If(cond, then, els Expr) Expr {
	return call{name: "if", args: []Expr{cond, then, els}, fn: func(v []float64) float64 {
		if v[0] != 0 {
			return v[1]
		}
		return v[2]
	}}
}

// Window describes an absolute activity interval on the clock.
type Window struct {
	Start float64
	End   float64
}

func (w Window) String() string {
	return fmt.Sprintf("[%g,%g]", w.Start, w.End)
}

// Active is between(t, start, end).
func (w Window) Active() Expr {
	return Between(T, Const(w.Start), Const(w.End))
}

// Progress is clip((t-start)/duration, 0, 1).
func (w Window) Progress() Expr {
	return Clip(Div(Sub(T, Const(w.Start)), Const(w.End-w.Start)), Const(0), Const(1))
}

// Gate yields body inside the window and neutral outside it.
func (w Window) Gate(body Expr, neutral float64) Expr {
	return If(w.Active(), body, Const(neutral))
}
