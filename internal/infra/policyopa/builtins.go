package policyopa

import "github.com/open-policy-agent/opa/ast"

// allowedBuiltins is the deterministic, side-effect-free subset of rego
// builtins a measurement policy may use. Network and time builtins stay
// out: a policy decision must be a pure function of its input.
var allowedBuiltins = map[string]struct{}{
	"abs":            {},
	"concat":         {},
	"contains":       {},
	"count":          {},
	"eq":             {},
	"equal":          {},
	"endswith":       {},
	"json.marshal":   {},
	"json.unmarshal": {},
	"lower":          {},
	"max":            {},
	"min":            {},
	"neq":            {},
	"object.get":     {},
	"object.remove":  {},
	"object.union":   {},
	"replace":        {},
	"sort":           {},
	"split":          {},
	"sprintf":        {},
	"startswith":     {},
	"substring":      {},
	"sum":            {},
	"trim":           {},
	"trim_left":      {},
	"trim_right":     {},
	"upper":          {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
