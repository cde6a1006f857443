// Package rule evaluates coupon eligibility rules written in CEL.
package rule

import (
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"nexus-settlement/internal/service/order/domain"
)

// ErrInvalidRule is returned for rules that do not compile to a boolean.
var ErrInvalidRule = errors.New("invalid coupon rule")

// CELRuleEngine implements domain.RuleEngine. Compiled programs are cached by
// rule text.
type CELRuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewCELRuleEngine() (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("subtotal", cel.IntType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("product_ids", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "build cel env")
	}
	return &CELRuleEngine{env: env, programs: map[string]cel.Program{}}, nil
}

// Evaluate reports whether facts satisfy rule. An empty rule always holds.
func (e *CELRuleEngine) Evaluate(rule string, facts domain.CouponFacts) (bool, error) {
	if rule == "" {
		return true, nil
	}
	prg, err := e.program(rule)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{
		"subtotal":    facts.Subtotal,
		"item_count":  facts.ItemCount,
		"user_id":     facts.UserID,
		"product_ids": facts.ProductIDs,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate rule %q", rule)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, errors.Wrapf(ErrInvalidRule, "rule %q returned %T", rule, out.Value())
	}
	return ok, nil
}

func (e *CELRuleEngine) program(rule string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[rule]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(rule)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(ErrInvalidRule, "%q: %v", rule, iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Wrapf(ErrInvalidRule, "%q is %s, not bool", rule, ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "plan rule %q", rule)
	}

	e.mu.Lock()
	e.programs[rule] = prg
	e.mu.Unlock()
	return prg, nil
}
