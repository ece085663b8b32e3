package builtin

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"

	"modbot/internal/session"
)

type addArgs struct {
	A float64 `json:"a" jsonschema:"description=First number"`
	B float64 `json:"b" jsonschema:"description=Second number"`
}

func add(ctx context.Context, sc *session.Context, args addArgs) (string, error) {
	return formatFloat(args.A + args.B), nil
}

type calcArgs struct {
	Expression string `json:"expression" jsonschema:"description=Arithmetic expression such as 2+2*3 or sqrt(16)^2"`
}

const calcHistoryKey = "calc_history"

func calculate(ctx context.Context, sc *session.Context, args calcArgs) (string, error) {
	src := strings.TrimSpace(args.Expression)
	if src == "" {
		return "", fmt.Errorf("expression is empty")
	}
	// ^ is exponentiation here, not xor.
	expr, err := parser.ParseExpr(powToCall(src))
	if err != nil {
		return "", fmt.Errorf("cannot parse %q", src)
	}
	v, err := evalExpr(expr)
	if err != nil {
		return "", err
	}

	history, _ := sc.ScratchGet(calcHistoryKey, []string(nil)).([]string)
	history = append(history, src+" = "+formatFloat(v))
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	sc.ScratchSet(calcHistoryKey, history)
	return fmt.Sprintf("%s = %s", src, formatFloat(v)), nil
}

// powToCall rewrites a^b into pow(a,b) for the innermost right-associative
// chains, enough for the expressions people type.
func powToCall(s string) string {
	for {
		i := strings.LastIndex(s, "^")
		if i < 0 {
			return s
		}
		left, lstart := operandBefore(s, i)
		right, rend := operandAfter(s, i+1)
		s = s[:lstart] + "pow(" + left + "," + right + ")" + s[rend:]
	}
}

func operandBefore(s string, end int) (string, int) {
	j := end - 1
	for j >= 0 && s[j] == ' ' {
		j--
	}
	if j >= 0 && s[j] == ')' {
		depth := 0
		for k := j; k >= 0; k-- {
			switch s[k] {
			case ')':
				depth++
			case '(':
				depth--
				if depth == 0 {
					start := k
					for start > 0 && isIdent(s[start-1]) {
						start--
					}
					return s[start : j+1], start
				}
			}
		}
		return s[:j+1], 0
	}
	start := j
	for start >= 0 && (isIdent(s[start]) || s[start] == '.') {
		start--
	}
	return s[start+1 : j+1], start + 1
}

func operandAfter(s string, begin int) (string, int) {
	j := begin
	for j < len(s) && s[j] == ' ' {
		j++
	}
	start := j
	if j < len(s) && (s[j] == '-' || s[j] == '+') {
		j++
	}
	for j < len(s) && (isIdent(s[j]) || s[j] == '.') {
		j++
	}
	if j < len(s) && s[j] == '(' {
		depth := 0
		for ; j < len(s); j++ {
			if s[j] == '(' {
				depth++
			} else if s[j] == ')' {
				depth--
				if depth == 0 {
					j++
					break
				}
			}
		}
	}
	return s[start:j], j
}

func isIdent(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

var calcFuncs = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"log":   math.Log,
	"ln":    math.Log,
	"log10": math.Log10,
	"abs":   math.Abs,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"round": math.Round,
}

var calcConsts = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

func evalExpr(e ast.Expr) (float64, error) {
	switch n := e.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, fmt.Errorf("unsupported literal %s", n.Value)
		}
		return strconv.ParseFloat(n.Value, 64)
	case *ast.Ident:
		if v, ok := calcConsts[strings.ToLower(n.Name)]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown name %q", n.Name)
	case *ast.ParenExpr:
		return evalExpr(n.X)
	case *ast.UnaryExpr:
		x, err := evalExpr(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.SUB:
			return -x, nil
		case token.ADD:
			return x, nil
		}
	case *ast.BinaryExpr:
		x, err := evalExpr(n.X)
		if err != nil {
			return 0, err
		}
		y, err := evalExpr(n.Y)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return x / y, nil
		case token.REM:
			if y == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return math.Mod(x, y), nil
		}
	case *ast.CallExpr:
		id, ok := n.Fun.(*ast.Ident)
		if !ok {
			break
		}
		name := strings.ToLower(id.Name)
		if name == "pow" && len(n.Args) == 2 {
			x, err := evalExpr(n.Args[0])
			if err != nil {
				return 0, err
			}
			y, err := evalExpr(n.Args[1])
			if err != nil {
				return 0, err
			}
			return math.Pow(x, y), nil
		}
		fn, ok := calcFuncs[name]
		if !ok || len(n.Args) != 1 {
			return 0, fmt.Errorf("unknown function %s", id.Name)
		}
		x, err := evalExpr(n.Args[0])
		if err != nil {
			return 0, err
		}
		return fn(x), nil
	}
	return 0, fmt.Errorf("unsupported expression")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
