package validation

import (
	"fmt"

	"github.com/renderflow/engine/pkg/schema"
)

// controlShape describes which nested step lists a control plugin uses.
type controlShape struct {
	needsBody  bool
	allowsElse bool
	needsCases bool
}

var controlShapes = map[string]controlShape{
	"control.if_else":   {needsBody: true, allowsElse: true},
	"control.while":     {needsBody: true},
	"control.for_each":  {needsBody: true},
	"control.try_catch": {needsBody: true, allowsElse: true},
	"control.switch":    {needsCases: true},
}

// validateSemantic performs the checks JSON Schema cannot express: duplicate
// step ids, control-flow steps with the wrong nested shape, and nested lists
// on non-control steps.
func validateSemantic(def *schema.WorkflowDefinition, registry PluginLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	seen := make(map[string]bool, len(def.Steps))
	checkDuplicateIDs(def.Steps, seen, result)

	for i := range def.Steps {
		validateStep(&def.Steps[i], fmt.Sprintf("steps[%d]", i), registry, result)
	}
	return result
}

// checkDuplicateIDs flags explicit ids reused at the top level. Nested lists
// have their own scopes and may reuse ids.
func checkDuplicateIDs(steps []schema.StepDefinition, seen map[string]bool, result *schema.ValidationResult) {
	for i, s := range steps {
		if s.ID == "" {
			continue
		}
		if seen[s.ID] {
			result.AddError(fmt.Sprintf("steps[%d].id", i), schema.ErrCodeValidation,
				fmt.Sprintf("duplicate step id %q", s.ID))
		}
		seen[s.ID] = true
	}
}

func validateStep(step *schema.StepDefinition, path string, registry PluginLookup, result *schema.ValidationResult) {
	if registry != nil && !registry.Has(step.Plugin) {
		result.AddError(path+".plugin", schema.ErrCodeUnregisteredStep,
			fmt.Sprintf("step %q not registered", step.Plugin))
	}

	shape, isControl := controlShapes[step.Plugin]
	if !isControl {
		if len(step.Body) > 0 || len(step.Else) > 0 || len(step.Cases) > 0 {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("plugin %q does not take nested steps", step.Plugin))
		}
		return
	}

	if shape.needsBody && len(step.Body) == 0 {
		result.AddError(path+".body", schema.ErrCodeValidation,
			fmt.Sprintf("plugin %q requires a non-empty body", step.Plugin))
	}
	if !shape.allowsElse && len(step.Else) > 0 {
		result.AddError(path+".else", schema.ErrCodeValidation,
			fmt.Sprintf("plugin %q does not take an else branch", step.Plugin))
	}
	if shape.needsCases && len(step.Cases) == 0 {
		result.AddError(path+".cases", schema.ErrCodeValidation,
			fmt.Sprintf("plugin %q requires at least one case", step.Plugin))
	}
	if !shape.needsCases && len(step.Cases) > 0 {
		result.AddError(path+".cases", schema.ErrCodeValidation,
			fmt.Sprintf("plugin %q does not take cases", step.Plugin))
	}

	for i := range step.Body {
		validateStep(&step.Body[i], fmt.Sprintf("%s.body[%d]", path, i), registry, result)
	}
	for i := range step.Else {
		validateStep(&step.Else[i], fmt.Sprintf("%s.else[%d]", path, i), registry, result)
	}
	for name, steps := range step.Cases {
		for i := range steps {
			validateStep(&steps[i], fmt.Sprintf("%s.cases[%s][%d]", path, name, i), registry, result)
		}
	}
}
