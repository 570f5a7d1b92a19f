package exprparser

import (
	"fmt"
	"strings"

	"github.com/flowllm-go/flowllm/pkg/op"
)

// Resolver instantiates a fresh op.Op for a registered name. found is false
// when name is not a registered op — in that case it must be a local variable
// bound by a preceding assignment statement, not a registry entry.
type Resolver func(name string) (o op.Op, found bool, err error)

// ErrNotAnOp is returned when the final expression does not evaluate to an
// op.Op.
var ErrNotAnOp = fmt.Errorf("expression did not evaluate to an operation")

// Parse compiles a multi-line textual flow DSL program into a root op.Op.
// The final non-blank line is the expression; preceding non-blank lines
// are assignment statements evaluated in order.
func Parse(content string, resolve Resolver) (op.Op, error) {
	raw := strings.TrimSpace(content)
	if raw == "" {
		return nil, fmt.Errorf("flow content is empty")
	}

	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, strings.TrimSpace(l))
		}
	}

	names, err := extractIdentifiers(lines)
	if err != nil {
		return nil, err
	}

	env := make(map[string]op.Op, len(names))
	for _, n := range names {
		o, found, err := resolve(n)
		if err != nil {
			return nil, fmt.Errorf("op %q: %w", n, err)
		}
		if found {
			env[n] = o
		}
	}

	for _, line := range lines[:len(lines)-1] {
		toks, err := Lex(line)
		if err != nil {
			return nil, err
		}
		stmt, err := parseStatement(toks)
		if err != nil {
			return nil, err
		}
		result, err := evalNode(stmt.Expr, env)
		if err != nil {
			return nil, err
		}
		if err := applyAssign(stmt, result, env); err != nil {
			return nil, err
		}
	}

	finalLine := lines[len(lines)-1]
	toks, err := Lex(finalLine)
	if err != nil {
		return nil, err
	}
	finalExpr, err := parseExpr(toks)
	if err != nil {
		return nil, err
	}
	result, err := evalNode(finalExpr, env)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyAssign binds a plain `name = expr` into env, or, for a dotted target
// (`op.ops.search = search_op`), attaches the evaluated expression as a child
// of the op named by the path's first segment.
func applyAssign(stmt *Assign, result op.Op, env map[string]op.Op) error {
	if len(stmt.Target) == 1 {
		env[stmt.Target[0]] = result
		return nil
	}
	base, ok := env[stmt.Target[0]]
	if !ok {
		return fmt.Errorf("op %q is not registered", stmt.Target[0])
	}
	attached, err := op.Attach(base, result)
	if err != nil {
		return err
	}
	env[stmt.Target[0]] = attached
	return nil
}

func evalNode(n Node, env map[string]op.Op) (op.Op, error) {
	switch v := n.(type) {
	case *Ref:
		o, ok := env[v.Name]
		if !ok {
			return nil, fmt.Errorf("op %q is not registered", v.Name)
		}
		return o, nil
	case *Seq:
		l, err := evalNode(v.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := evalNode(v.Right, env)
		if err != nil {
			return nil, err
		}
		return op.Then(l, r)
	case *Par:
		l, err := evalNode(v.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := evalNode(v.Right, env)
		if err != nil {
			return nil, err
		}
		return op.Par(l, r)
	case *Attach:
		l, err := evalNode(v.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := evalNode(v.Right, env)
		if err != nil {
			return nil, err
		}
		return op.Attach(l, r)
	default:
		return nil, fmt.Errorf("%w: unknown node %T", ErrNotAnOp, n)
	}
}

// extractIdentifiers lexes every line and collects the distinct identifiers
// seen, in first-seen order.
func extractIdentifiers(lines []string) ([]string, error) {
	seen := make(map[string]bool)
	var order []string
	for _, line := range lines {
		toks, err := Lex(line)
		if err != nil {
			return nil, err
		}
		for _, t := range toks {
			if t.Kind == TokIdent && !seen[t.Text] {
				seen[t.Text] = true
				order = append(order, t.Text)
			}
		}
	}
	return order, nil
}
