package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// CalculatorInput is the input of calculator.
type CalculatorInput struct {
	Expression string `json:"expression"`
}

func (in CalculatorInput) Validate() error {
	if strings.TrimSpace(in.Expression) == "" {
		return &ValidationError{Field: "expression", Message: "must not be empty"}
	}
	return nil
}

// Calculator evaluates arithmetic expressions.
func Calculator() Tool {
	return New(Definition{
		Name: "calculator",
		Description: "Evaluate an arithmetic expression. Supports + - * / % and ** (power), parentheses, " +
			"pi, e and the functions sqrt, pow, abs, floor, ceil, round, log, log10, exp, sin, cos, tan, min, max.",
		Fields: []Field{
			{Name: "expression", Type: String, Description: "expression such as '(2+3)*4' or 'sqrt(16)'", Required: true},
		},
	}, func(_ context.Context, in CalculatorInput) (string, error) {
		v, err := Evaluate(in.Expression)
		if err != nil {
			return "", err
		}
		return "Result: " + FormatNumber(v), nil
	})
}

// FormatNumber prints integral values without a fractional part.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', 12, 64)
}

var errDivByZero = errors.New("division by zero")

// calcEnv holds the only names an expression may reference besides the
// functions below.
var calcEnv = map[string]any{
	"pi":  math.Pi,
	"e":   math.E,
	"tau": 2 * math.Pi,
}

var calcFuncs = map[string]func(params ...any) (any, error){
	"sqrt": numeric("sqrt", 1, func(x ...float64) (float64, error) {
		if x[0] < 0 {
			return 0, errors.New("math domain error")
		}
		return math.Sqrt(x[0]), nil
	}),
	"pow":   numeric("pow", 2, func(x ...float64) (float64, error) { return math.Pow(x[0], x[1]), nil }),
	"abs":   numeric("abs", 1, pure(math.Abs)),
	"floor": numeric("floor", 1, pure(math.Floor)),
	"ceil":  numeric("ceil", 1, pure(math.Ceil)),
	"round": numeric("round", 1, pure(math.RoundToEven)),
	"log": numeric("log", -1, func(x ...float64) (float64, error) {
		if len(x) < 1 || len(x) > 2 {
			return 0, fmt.Errorf("log expects 1 or 2 arguments, got %d", len(x))
		}
		if x[0] <= 0 || (len(x) == 2 && (x[1] <= 0 || x[1] == 1)) {
			return 0, errors.New("math domain error")
		}
		if len(x) == 2 {
			return math.Log(x[0]) / math.Log(x[1]), nil
		}
		return math.Log(x[0]), nil
	}),
	"log10": numeric("log10", 1, func(x ...float64) (float64, error) {
		if x[0] <= 0 {
			return 0, errors.New("math domain error")
		}
		return math.Log10(x[0]), nil
	}),
	"exp": numeric("exp", 1, pure(math.Exp)),
	"sin": numeric("sin", 1, pure(math.Sin)),
	"cos": numeric("cos", 1, pure(math.Cos)),
	"tan": numeric("tan", 1, pure(math.Tan)),
	"min": numeric("min", -1, fold(math.Min)),
	"max": numeric("max", -1, fold(math.Max)),
}

// calcOptions restricts expr to arithmetic: builtins are off, % and / go
// through functions that reject a zero divisor and follow floored modulo.
var calcOptions = func() []expr.Option {
	opts := []expr.Option{
		expr.Env(calcEnv),
		expr.DisableAllBuiltins(),
		expr.Function("_mod", binary(floorMod), new(func(any, any) float64)),
		expr.Function("_div", binary(divide), new(func(any, any) float64)),
		expr.Operator("%", "_mod"),
		expr.Operator("/", "_div"),
	}
	for name, fn := range calcFuncs {
		opts = append(opts, expr.Function(name, fn))
	}
	return opts
}()

// Evaluate compiles and runs an arithmetic expression. '**' and '^' both
// mean power and bind tighter than unary minus, so -2**2 is -4.
func Evaluate(input string) (float64, error) {
	src := strings.TrimSpace(input)
	src = strings.TrimRight(src, "=?")
	src = strings.NewReplacer("×", "*", "÷", "/").Replace(src)
	if strings.TrimSpace(src) == "" {
		return 0, errors.New("empty expression")
	}

	program, err := expr.Compile(src, calcOptions...)
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %s", firstLine(err.Error()))
	}
	out, err := expr.Run(program, calcEnv)
	if err != nil {
		return 0, errors.New(firstLine(err.Error()))
	}

	v, ok := toFloat(out)
	if !ok {
		return 0, fmt.Errorf("result is not a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return v, nil
}

func numeric(name string, arity int, f func(x ...float64) (float64, error)) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if arity >= 0 && len(params) != arity {
			return nil, fmt.Errorf("%s expects %d argument(s), got %d", name, arity, len(params))
		}
		args := make([]float64, len(params))
		for i, p := range params {
			v, ok := toFloat(p)
			if !ok {
				return nil, fmt.Errorf("%s: argument %d is not a number", name, i+1)
			}
			args[i] = v
		}
		v, err := f(args...)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func pure(f func(float64) float64) func(x ...float64) (float64, error) {
	return func(x ...float64) (float64, error) { return f(x[0]), nil }
}

func fold(f func(a, b float64) float64) func(x ...float64) (float64, error) {
	return func(x ...float64) (float64, error) {
		if len(x) == 0 {
			return 0, errors.New("expected at least 1 argument")
		}
		acc := x[0]
		for _, v := range x[1:] {
			acc = f(acc, v)
		}
		return acc, nil
	}
}

func binary(f func(a, b float64) (float64, error)) func(params ...any) (any, error) {
	return numeric("operator", 2, func(x ...float64) (float64, error) { return f(x[0], x[1]) })
}

func divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivByZero
	}
	return a / b, nil
}

// floorMod takes the sign of the divisor: -7 % 3 is 2.
func floorMod(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivByZero
	}
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
