package validation

import "github.com/renderflow/engine/pkg/schema"

// PluginLookup answers whether a plugin id is registered. The step registry
// satisfies it; nil skips existence checks.
type PluginLookup interface {
	Has(id string) bool
}

// WorkflowValidator runs the two-stage validation pipeline: structural
// (JSON Schema), then semantic (control-flow shape, duplicate ids, plugin
// existence). Structural errors short-circuit the semantic stage.
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	plugins    PluginLookup
}

// NewWorkflowValidator creates a WorkflowValidator. lookup may be nil to
// skip plugin existence checks.
func NewWorkflowValidator(lookup PluginLookup) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{jsonSchema: jsv, plugins: lookup}, nil
}

// Validate runs both stages and returns the aggregated result.
func (wv *WorkflowValidator) Validate(def *schema.WorkflowDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow definition is nil")
		return r
	}

	result := validateStructural(wv.jsonSchema, def)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(def, wv.plugins))
	return result
}

// ValidateDefinition satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	return wv.Validate(def).ToError()
}

// validateStructural wraps JSONSchemaValidator.ValidateDefinition,
// converting its error output into a ValidationResult.
func validateStructural(v *JSONSchemaValidator, def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDefinition(def)
	if err == nil {
		return result
	}

	ee, ok := err.(*schema.EngineError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if ee.Details != nil {
		if violations, ok := ee.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, ee.Message)
	return result
}
