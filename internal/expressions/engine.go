package expressions

import "context"

// Engine evaluates expressions attached to node kinds and graph assets.
// Three implementations: CEL (config rules), Expr (template guards), GoJQ (asset selection).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
