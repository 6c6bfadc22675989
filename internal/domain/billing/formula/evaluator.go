// Package formula implements a small sandboxed expression language for
// user-defined tariffs. Expressions support decimal arithmetic, comparisons
// and an allow-listed function set; nothing else can be reached from a
// formula.
package formula

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Default complexity bounds
const (
	DefaultMaxLength = 2048
	DefaultMaxTokens = 512
	DefaultMaxDepth  = 32
)

// Variables is the closed dictionary a formula is evaluated against
type Variables map[string]decimal.Decimal

// BoolValue converts a flag into the numeric form formulas see (1 or 0)
func BoolValue(b bool) decimal.Decimal {
	if b {
		return decimal.NewFromInt(1)
	}
	return decimal.Zero
}

// Expression is a parsed formula ready for evaluation
type Expression struct {
	source    string
	root      node
	variables []string
}

// Source returns the original formula text
func (e *Expression) Source() string {
	return e.source
}

// Variables returns the sorted identifiers referenced by the expression
func (e *Expression) Variables() []string {
	out := make([]string, len(e.variables))
	copy(out, e.variables)
	return out
}

// Evaluate computes the expression against vars
func (e *Expression) Evaluate(vars Variables) (decimal.Decimal, error) {
	return e.root.eval(vars)
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithMaxLength overrides the maximum formula length in bytes
func WithMaxLength(n int) Option {
	return func(e *Evaluator) { e.maxLength = n }
}

// WithMaxTokens overrides the maximum number of tokens
func WithMaxTokens(n int) Option {
	return func(e *Evaluator) { e.maxTokens = n }
}

// WithMaxDepth overrides the maximum nesting depth
func WithMaxDepth(n int) Option {
	return func(e *Evaluator) { e.maxDepth = n }
}

// Evaluator compiles and evaluates formulas under fixed complexity bounds.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	maxLength int
	maxTokens int
	maxDepth  int
}

// NewEvaluator creates an evaluator with default bounds
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		maxLength: DefaultMaxLength,
		maxTokens: DefaultMaxTokens,
		maxDepth:  DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile parses a formula into an Expression
func (e *Evaluator) Compile(formula string) (*Expression, error) {
	if len(formula) > e.maxLength {
		return nil, syntaxError(-1, "formula exceeds %d characters", e.maxLength)
	}
	tokens, err := tokenize(formula, e.maxTokens)
	if err != nil {
		return nil, err
	}
	root, idents, err := parse(tokens, e.maxDepth)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(idents))
	for name := range idents {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Expression{source: formula, root: root, variables: names}, nil
}

// Evaluate compiles and evaluates formula against vars
func (e *Evaluator) Evaluate(formula string, vars Variables) (decimal.Decimal, error) {
	expr, err := e.Compile(formula)
	if err != nil {
		return decimal.Zero, err
	}
	return expr.Evaluate(vars)
}

// Validate checks that formula compiles and only references allowed variables
func (e *Evaluator) Validate(formula string, allowed []string) error {
	expr, err := e.Compile(formula)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		known[name] = struct{}{}
	}
	for _, name := range expr.variables {
		if _, ok := known[name]; !ok {
			return syntaxError(-1, "unknown variable %q", name)
		}
	}
	return nil
}

func (n *numberNode) eval(Variables) (decimal.Decimal, error) {
	return n.value, nil
}

func (n *variableNode) eval(vars Variables) (decimal.Decimal, error) {
	v, ok := vars[n.name]
	if !ok {
		return decimal.Zero, evalError("unknown variable %q", n.name)
	}
	return bounded(v)
}

func (n *unaryNode) eval(vars Variables) (decimal.Decimal, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

func (n *binaryNode) eval(vars Variables) (decimal.Decimal, error) {
	left, err := n.left.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	right, err := n.right.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case "+":
		return bounded(left.Add(right))
	case "-":
		return bounded(left.Sub(right))
	case "*":
		return bounded(left.Mul(right))
	case "/":
		if right.IsZero() {
			return decimal.Zero, evalError("division by zero")
		}
		return bounded(left.Div(right))
	case "^":
		return power(left, right)
	case "<":
		return BoolValue(left.LessThan(right)), nil
	case "<=":
		return BoolValue(left.LessThanOrEqual(right)), nil
	case ">":
		return BoolValue(left.GreaterThan(right)), nil
	case ">=":
		return BoolValue(left.GreaterThanOrEqual(right)), nil
	case "==":
		return BoolValue(left.Equal(right)), nil
	case "!=":
		return BoolValue(!left.Equal(right)), nil
	default:
		return decimal.Zero, evalError("unsupported operator %q", n.op)
	}
}

func (n *callNode) eval(vars Variables) (decimal.Decimal, error) {
	args := make([]decimal.Decimal, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(vars)
		if err != nil {
			return decimal.Zero, err
		}
		args[i] = v
	}
	v, err := n.fn.apply(args)
	if err != nil {
		return decimal.Zero, err
	}
	return bounded(v)
}
