package composition

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// functionCallPattern matches a single top-level function call expression
// like "has-pack(python)" or "and(has-pack(a), not(has-pack(b)))", mirroring
// ConditionEvaluator.FUNCTION_PATTERN from transformers/conditionals.py.
var functionCallPattern = regexp.MustCompile(`^(\w+(?:-\w+)*)\((.*)?\)$`)

// conditionFunc evaluates a parsed condition function against its raw
// (unevaluated) argument strings, recursing into Evaluator.Evaluate for
// arguments that are themselves expressions (not, and, or).
type conditionFunc func(e *Evaluator, args []string) (bool, error)

var conditionFunctions = map[string]conditionFunc{
	"has-pack": func(e *Evaluator, args []string) (bool, error) {
		if len(args) != 1 {
			return false, fmt.Errorf("has-pack expects 1 argument, got %d", len(args))
		}
		for _, p := range e.ctx.ActivePacks {
			if p == args[0] {
				return true, nil
			}
		}
		return false, nil
	},
	"config": func(e *Evaluator, args []string) (bool, error) {
		if len(args) != 1 {
			return false, fmt.Errorf("config expects 1 argument, got %d", len(args))
		}
		return isTruthy(e.ctx.GetConfig(args[0])), nil
	},
	"config-eq": func(e *Evaluator, args []string) (bool, error) {
		if len(args) != 2 {
			return false, fmt.Errorf("config-eq expects 2 arguments, got %d", len(args))
		}
		return fmt.Sprintf("%v", e.ctx.GetConfig(args[0])) == args[1], nil
	},
	"env": func(e *Evaluator, args []string) (bool, error) {
		if len(args) != 1 {
			return false, fmt.Errorf("env expects 1 argument, got %d", len(args))
		}
		return os.Getenv(args[0]) != "", nil
	},
	"file-exists": func(e *Evaluator, args []string) (bool, error) {
		if len(args) != 1 {
			return false, fmt.Errorf("file-exists expects 1 argument, got %d", len(args))
		}
		if e.ctx.ProjectRoot == "" {
			return false, nil
		}
		return fileExists(filepath.Join(e.ctx.ProjectRoot, args[0])), nil
	},
	"not": func(e *Evaluator, args []string) (bool, error) {
		if len(args) != 1 {
			return false, fmt.Errorf("not expects 1 argument, got %d", len(args))
		}
		v, err := e.Evaluate(args[0])
		if err != nil {
			return false, err
		}
		return !v, nil
	},
	"and": func(e *Evaluator, args []string) (bool, error) {
		if len(args) != 2 {
			return false, fmt.Errorf("and expects 2 arguments, got %d", len(args))
		}
		a, err := e.Evaluate(args[0])
		if err != nil {
			return false, err
		}
		b, err := e.Evaluate(args[1])
		if err != nil {
			return false, err
		}
		return a && b, nil
	},
	"or": func(e *Evaluator, args []string) (bool, error) {
		if len(args) != 2 {
			return false, fmt.Errorf("or expects 2 arguments, got %d", len(args))
		}
		a, err := e.Evaluate(args[0])
		if err != nil {
			return false, err
		}
		b, err := e.Evaluate(args[1])
		if err != nil {
			return false, err
		}
		return a || b, nil
	},
}

// isTruthy mirrors Python's bool() coercion for the JSON/YAML-ish value
// types a merged config can hold.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// Evaluator evaluates the closed function-call condition grammar described
// in spec.md §4.2, grounded on transformers/conditionals.py's
// ConditionEvaluator.
type Evaluator struct {
	ctx *Context
}

func NewEvaluator(ctx *Context) *Evaluator { return &Evaluator{ctx: ctx} }

// Evaluate parses and runs a single condition expression such as
// "and(has-pack(vitest), config(strict))".
func (e *Evaluator) Evaluate(expr string) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, fmt.Errorf("empty condition expression")
	}

	m := functionCallPattern.FindStringSubmatch(expr)
	if m == nil {
		return false, fmt.Errorf("invalid condition expression: %s", expr)
	}

	funcName, argsStr := m[1], m[2]
	fn, ok := conditionFunctions[funcName]
	if !ok {
		return false, fmt.Errorf("unknown condition function: %s. available functions: %s", funcName, availableFunctionNames())
	}

	return fn(e, parseConditionArgs(argsStr))
}

func availableFunctionNames() string {
	names := make([]string, 0, len(conditionFunctions))
	for k := range conditionFunctions {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// parseConditionArgs splits a comma-separated argument list while tracking
// parenthesis depth so nested calls like "and(a(1), b(2))" split correctly,
// mirroring ConditionEvaluator._parse_args.
func parseConditionArgs(argsStr string) []string {
	if strings.TrimSpace(argsStr) == "" {
		return nil
	}

	var args []string
	var current strings.Builder
	depth := 0

	for _, ch := range argsStr {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(current.String()))
				current.Reset()
				continue
			}
			current.WriteRune(ch)
		default:
			current.WriteRune(ch)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		args = append(args, strings.TrimSpace(current.String()))
	}
	return args
}
