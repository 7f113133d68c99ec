// Package policyopa evaluates the measurement acceptance policy with rego.
// Operators ship a policy bundle deciding which PCR0 measurements are
// acceptable per role, instead of redeploying the gateway for every
// enclave image rotation.
package policyopa

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/nathancole636-ui/my-lead-poet/internal/usecase"
)

const defaultQuery = "data.gateway.attestation.result"

type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngineFromBundlePath compiles the rego bundle at the given path. The
// compiler runs with a capabilities set stripped to pure builtins, so a
// bundle that reaches for http.send or time fails to load.
func NewEngineFromBundlePath(ctx context.Context, bundlePath string) (*Engine, error) {
	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{bundlePath}, nil),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Evaluate(ctx context.Context, input usecase.MeasurementInput) (usecase.MeasurementDecision, error) {
	if e == nil {
		return usecase.MeasurementDecision{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return usecase.MeasurementDecision{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// An absent result is a denial: the policy did not affirmatively
		// accept the measurement.
		return usecase.MeasurementDecision{Allow: false, Reason: "policy produced no result"}, nil
	}
	return decodeDecision(results[0].Expressions[0].Value)
}

func decodeDecision(value any) (usecase.MeasurementDecision, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return usecase.MeasurementDecision{}, err
	}
	var decision usecase.MeasurementDecision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return usecase.MeasurementDecision{}, err
	}
	return decision, nil
}
