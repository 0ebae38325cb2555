package design

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprSrc is the source text of an arithmetic expression in a descriptor.
// Descriptors may write plain numbers instead of strings.
type ExprSrc string

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (e *ExprSrc) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = ExprSrc(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expression must be a string or a number: %s", data)
	}

	*e = ExprSrc(n.String())

	return nil
}

// Expr is a compiled descriptor expression. Plain identifiers and numeric
// literals bypass the expression VM.
type Expr struct {
	src      string
	ident    string
	constant float64
	isConst  bool
	program  *vm.Program
}

// env is the evaluation environment of expressions: every parameter name
// of the design mapped to a float64 value.
type env map[string]any

func compileExpr(src ExprSrc, names []string) (*Expr, error) {
	s := strings.TrimSpace(string(src))
	if s == "" {
		return nil, nil
	}

	e := &Expr{src: s}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		e.constant = v
		e.isConst = true
		return e, nil
	}

	for _, n := range names {
		if n == s {
			e.ident = s
			return e, nil
		}
	}

	sample := make(env, len(names))
	for _, n := range names {
		sample[n] = 0.0
	}

	program, err := expr.Compile(s, expr.Env(map[string]any(sample)), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("compiling expression %q: %w", s, err)
	}

	e.program = program

	return e, nil
}

// String returns the expression source.
func (e *Expr) String() string {
	if e == nil {
		return ""
	}

	return e.src
}

// Ident returns the identifier if the expression is a bare parameter name.
func (e *Expr) Ident() string {
	if e == nil {
		return ""
	}

	return e.ident
}

func (e *Expr) eval(vars env) float64 {
	switch {
	case e.isConst:
		return e.constant
	case e.ident != "":
		v, _ := vars[e.ident].(float64)
		return v
	}

	out, err := expr.Run(e.program, map[string]any(vars))
	if err != nil {
		return math.NaN()
	}

	v, ok := out.(float64)
	if !ok {
		return math.NaN()
	}

	return v
}

// evalOr evaluates e, returning def when e is absent.
func (e *Expr) evalOr(vars env, def float64) float64 {
	if e == nil {
		return def
	}

	return e.eval(vars)
}
