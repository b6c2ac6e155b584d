// Package validation checks workflow definitions before execution: a
// structural pass against an embedded JSON Schema, then a semantic pass over
// the control-flow shape JSON Schema cannot express.
package validation

import "github.com/renderflow/engine/pkg/schema"

// Validator checks workflow definitions for correctness before execution.
type Validator interface {
	ValidateDefinition(def *schema.WorkflowDefinition) error
}
