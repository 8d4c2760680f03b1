package exec

import (
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"math"
	"math/cmplx"
	"sort"
	"strconv"

	"github.com/born-ml/mdo/internal/component"
)

// ErrEval is returned when an expression cannot be evaluated.
var ErrEval = errors.New("exec: evaluation failed")

var constants = map[string]complex128{
	"pi": complex(math.Pi, 0),
	"e":  complex(math.E, 0),
}

type function struct {
	arity int
	fn    func(args []complex128) complex128
}

// Functions are chosen to be complex-step safe: abs branches on the real part
// instead of taking a modulus.
var functions = map[string]function{
	"sqrt": {1, func(a []complex128) complex128 { return cmplx.Sqrt(a[0]) }},
	"exp":  {1, func(a []complex128) complex128 { return cmplx.Exp(a[0]) }},
	"log":  {1, func(a []complex128) complex128 { return cmplx.Log(a[0]) }},
	"sin":  {1, func(a []complex128) complex128 { return cmplx.Sin(a[0]) }},
	"cos":  {1, func(a []complex128) complex128 { return cmplx.Cos(a[0]) }},
	"tan":  {1, func(a []complex128) complex128 { return cmplx.Tan(a[0]) }},
	"tanh": {1, func(a []complex128) complex128 { return cmplx.Tanh(a[0]) }},
	"abs": {1, func(a []complex128) complex128 {
		if real(a[0]) < 0 {
			return -a[0]
		}
		return a[0]
	}},
	"pow": {2, func(a []complex128) complex128 { return pow(a[0], a[1]) }},
}

// pow keeps integer powers of real bases on the multiplication path so that
// negative bases and zero stay well defined.
func pow(x, y complex128) complex128 {
	if imag(y) == 0 && real(y) == math.Trunc(real(y)) && math.Abs(real(y)) <= 64 {
		n := int(real(y))
		result := complex(1, 0)
		base := x
		if n < 0 {
			base = 1 / x
			n = -n
		}
		for ; n > 0; n-- {
			result *= base
		}
		return result
	}
	return cmplx.Pow(x, y)
}

// freeIdents returns the variable names referenced by expr, sorted.
func freeIdents(expr ast.Expr) ([]string, error) {
	seen := make(map[string]bool)
	var err error
	ast.Inspect(expr, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.CallExpr:
			fn, ok := n.Fun.(*ast.Ident)
			if !ok {
				err = fmt.Errorf("unsupported call %T", n.Fun)
				return false
			}
			f, ok := functions[fn.Name]
			if !ok {
				err = fmt.Errorf("unknown function %q", fn.Name)
				return false
			}
			if len(n.Args) != f.arity {
				err = fmt.Errorf("%s takes %d arguments, got %d", fn.Name, f.arity, len(n.Args))
				return false
			}
			for _, arg := range n.Args {
				ast.Inspect(arg, func(m ast.Node) bool {
					return collect(m, seen, &err)
				})
			}
			return false
		default:
			return collect(n, seen, &err)
		}
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func collect(n ast.Node, seen map[string]bool, err *error) bool {
	switch n := n.(type) {
	case nil:
		return false
	case *ast.Ident:
		if _, ok := constants[n.Name]; !ok {
			seen[n.Name] = true
		}
	case *ast.CallExpr:
		ids, e := freeIdents(n)
		if e != nil {
			*err = e
			return false
		}
		for _, id := range ids {
			seen[id] = true
		}
		return false
	case *ast.BinaryExpr:
		switch n.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO:
		default:
			*err = fmt.Errorf("unsupported operator %s", n.Op)
			return false
		}
	case *ast.UnaryExpr:
		if n.Op != token.ADD && n.Op != token.SUB {
			*err = fmt.Errorf("unsupported operator %s", n.Op)
			return false
		}
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			*err = fmt.Errorf("unsupported literal %s", n.Value)
			return false
		}
	case *ast.ParenExpr:
	default:
		*err = fmt.Errorf("unsupported expression %T", n)
		return false
	}
	return true
}

// eval evaluates expr against the complex variables in vars.
func eval(expr ast.Expr, vars *component.ComplexVector) (complex128, error) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind != token.INT && e.Kind != token.FLOAT {
			return 0, fmt.Errorf("%w: literal %s", ErrEval, e.Value)
		}
		v, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrEval, err)
		}
		return complex(v, 0), nil
	case *ast.Ident:
		if c, ok := constants[e.Name]; ok {
			return c, nil
		}
		if !vars.Has(e.Name) {
			return 0, fmt.Errorf("%w: undefined %q", ErrEval, e.Name)
		}
		return vars.Scalar(e.Name), nil
	case *ast.ParenExpr:
		return eval(e.X, vars)
	case *ast.UnaryExpr:
		x, err := eval(e.X, vars)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.SUB:
			return -x, nil
		case token.ADD:
			return x, nil
		}
		return 0, fmt.Errorf("%w: operator %s", ErrEval, e.Op)
	case *ast.BinaryExpr:
		x, err := eval(e.X, vars)
		if err != nil {
			return 0, err
		}
		y, err := eval(e.Y, vars)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			return x / y, nil
		}
		return 0, fmt.Errorf("%w: operator %s", ErrEval, e.Op)
	case *ast.CallExpr:
		name := e.Fun.(*ast.Ident).Name // validated at parse time
		args := make([]complex128, len(e.Args))
		for i, a := range e.Args {
			v, err := eval(a, vars)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		return functions[name].fn(args), nil
	}
	return 0, fmt.Errorf("%w: unsupported %T", ErrEval, expr)
}
