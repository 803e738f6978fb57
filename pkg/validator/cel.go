package validator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// CELValidator evaluates a configured CEL expression over the delivery's
// public fields. The expression must evaluate to a bool; true approves.
// Compiled programs are cached per expression.
type CELValidator struct {
	env  *cel.Env
	expr string

	mu  sync.Mutex
	prg cel.Program
}

// NewCELValidator compiles the environment and stores the rule expression.
// Example rule: `delivery.payload_ref != "" && delivery.agent_id != ""`.
func NewCELValidator(expr string) (*CELValidator, error) {
	env, err := cel.NewEnv(
		cel.Variable("delivery", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELValidator{env: env, expr: expr}, nil
}

func (v *CELValidator) Validate(_ context.Context, delivery *contracts.Delivery) (Result, error) {
	prg, err := v.program()
	if err != nil {
		return Result{}, err
	}

	input := map[string]any{
		"delivery": map[string]any{
			"contract_id":  delivery.ContractID,
			"agent_id":     delivery.AgentID,
			"payload_ref":  delivery.PayloadRef,
			"submitted_at": delivery.SubmittedAt.Unix(),
		},
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate validation rule: %w", err)
	}
	approved, ok := out.Value().(bool)
	if !ok {
		return Result{}, fmt.Errorf("validation rule returned %T, want bool", out.Value())
	}
	if approved {
		return Result{Approved: true}, nil
	}
	return Result{Approved: false, Reason: fmt.Sprintf("rule %q rejected delivery", v.expr)}, nil
}

func (v *CELValidator) program() (cel.Program, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.prg != nil {
		return v.prg, nil
	}
	ast, iss := v.env.Compile(v.expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile validation rule: %w", iss.Err())
	}
	prg, err := v.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build validation program: %w", err)
	}
	v.prg = prg
	return prg, nil
}
