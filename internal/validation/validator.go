package validation

import (
	"context"

	"github.com/rendis/blueprint/pkg/schema"
)

// Validator checks graph definitions before they are scheduled.
// Uses JSON Schema Draft 2020-12 for structure and node configuration.
type Validator interface {
	Validate(ctx context.Context, def *schema.GraphDefinition) *schema.Diagnostics
}
