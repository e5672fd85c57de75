// Package policy gates scan targets through an OPA policy before launch.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the target policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine for target admission.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Input is the document evaluated against the policy.
type Input struct {
	Target string `json:"target"`
	Type   string `json:"type"`
	Host   string `json:"host"`
	Scheme string `json:"scheme,omitempty"`
}

// NewEngine creates a policy engine from rego source.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.scan_policy.decision"),
		rego.Module("scan_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the target policy and returns the decision. A policy that
// produces no result allows the target.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(map[string]any{
		"target": input.Target,
		"type":   input.Type,
		"host":   input.Host,
		"scheme": input.Scheme,
	}))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("policy returned non-string decision: %v", results[0].Expressions[0].Value)
}

// DefaultPolicy blocks targets that would point the agent back at the
// control plane's own host or the link-local range.
const DefaultPolicy = `
package scan_policy

import rego.v1

default decision := "allow"

blocked_hosts := {"localhost", "127.0.0.1", "::1", "0.0.0.0"}

decision := "block" if input.host in blocked_hosts

decision := "block" if endswith(input.host, ".localhost")

decision := "block" if startswith(input.host, "169.254.")
`
