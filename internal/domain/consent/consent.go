// Package consent evaluates user-defined disclosure rules. A rule is a CEL
// expression over the verifier and a candidate credential; when any rule
// evaluates to true, the credential may be disclosed without an interactive
// prompt.
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/neoke/pocket/internal/domain/credential"
)

// maxExpressionLength caps rule size; longer expressions are config mistakes.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit per evaluation.
const maxCostBudget = 100_000

// maxNestingDepth caps parenthesis/bracket nesting in a rule.
const maxNestingDepth = 50

// evalTimeout bounds a single rule evaluation.
const evalTimeout = 2 * time.Second

// Rule is one disclosure rule.
type Rule struct {
	// Name identifies the rule in logs and errors.
	Name string
	// Expression is a CEL expression over `verifier` (string) and
	// `credential` (map with docType, types, issuer, status).
	Expression string
}

// Engine compiles rules once and evaluates them per candidate.
type Engine struct {
	rules []compiledRule
}

type compiledRule struct {
	name string
	prg  cel.Program
}

// NewEngine compiles the given rules. An empty rule set is valid and means
// every disclosure requires an interactive confirmation.
func NewEngine(rules []Rule) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("verifier", cel.StringType),
		cel.Variable("credential", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create consent environment: %w", err)
	}

	e := &Engine{}
	for _, r := range rules {
		if err := validateExpression(r.Expression); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %q: expression must yield a bool, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast,
			cel.EvalOptions(cel.OptOptimize),
			cel.CostLimit(maxCostBudget),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		e.rules = append(e.rules, compiledRule{name: r.Name, prg: prg})
	}
	return e, nil
}

// Allow reports whether the credential may be disclosed to the verifier
// without prompting, and which rule granted it. Rule evaluation errors are
// treated as "not granted" for that rule, never as a grant.
func (e *Engine) Allow(ctx context.Context, verifier string, cred *credential.Credential) (bool, string) {
	if len(e.rules) == 0 {
		return false, ""
	}

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	input := map[string]any{
		"verifier": verifier,
		"credential": map[string]any{
			"docType": cred.DocType,
			"types":   cred.Type,
			"issuer":  cred.Issuer,
			"status":  string(cred.EffectiveStatus(time.Now())),
		},
	}

	for _, r := range e.rules {
		out, _, err := r.prg.ContextEval(ctx, input)
		if err != nil {
			continue
		}
		if granted, ok := out.Value().(bool); ok && granted {
			return true, r.name
		}
	}
	return false, ""
}

func validateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}
