package workflow

import (
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/renderflow/engine/pkg/schema"
)

// hclDocument is the top-level structure of a workflow HCL file.
type hclDocument struct {
	Name  *string    `hcl:"name,optional"`
	Steps []*hclStep `hcl:"step,block"`
}

// hclStep is one `step "<plugin>" "<id>" { ... }` block. Nested step lists
// live in body/else blocks and labeled case blocks.
type hclStep struct {
	Plugin  string            `hcl:"plugin,label"`
	ID      string            `hcl:"id,label"`
	Params  cty.Value         `hcl:"params,optional"`
	Inputs  map[string]string `hcl:"inputs,optional"`
	Outputs map[string]string `hcl:"outputs,optional"`
	Body    *hclStepList      `hcl:"body,block"`
	Else    *hclStepList      `hcl:"else,block"`
	Cases   []*hclCase        `hcl:"case,block"`
}

type hclStepList struct {
	Steps []*hclStep `hcl:"step,block"`
}

type hclCase struct {
	Label string     `hcl:"label,label"`
	Steps []*hclStep `hcl:"step,block"`
}

// LoadHCL decodes and validates an HCL workflow document.
func (l *Loader) LoadHCL(filename string, data []byte) (*schema.WorkflowDefinition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"parse HCL workflow %s: %s", filename, diags.Error())
	}

	var doc hclDocument
	if diags := gohcl.DecodeBody(file.Body, nil, &doc); diags.HasErrors() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"decode HCL workflow %s: %s", filename, diags.Error())
	}

	def := &schema.WorkflowDefinition{}
	if doc.Name != nil {
		def.Name = *doc.Name
	}
	steps, err := convertSteps(doc.Steps)
	if err != nil {
		return nil, err
	}
	def.Steps = steps

	return l.validated(def)
}

func convertSteps(in []*hclStep) ([]schema.StepDefinition, error) {
	out := make([]schema.StepDefinition, 0, len(in))
	for _, hs := range in {
		def, err := convertStep(hs)
		if err != nil {
			return nil, err
		}
		out = append(out, *def)
	}
	return out, nil
}

func convertStep(hs *hclStep) (*schema.StepDefinition, error) {
	def := &schema.StepDefinition{
		Plugin:  hs.Plugin,
		ID:      hs.ID,
		Inputs:  hs.Inputs,
		Outputs: hs.Outputs,
	}

	if hs.Params != cty.NilVal && !hs.Params.IsNull() {
		if !hs.Params.Type().IsObjectType() && !hs.Params.Type().IsMapType() {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"step %q: params must be an object", def.Label())
		}
		params, ok := ctyToGo(hs.Params).(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"step %q: params must be an object", def.Label())
		}
		def.Params = params
	}

	var err error
	if hs.Body != nil {
		if def.Body, err = convertSteps(hs.Body.Steps); err != nil {
			return nil, err
		}
	}
	if hs.Else != nil {
		if def.Else, err = convertSteps(hs.Else.Steps); err != nil {
			return nil, err
		}
	}
	if len(hs.Cases) > 0 {
		def.Cases = make(map[string][]schema.StepDefinition, len(hs.Cases))
		for _, c := range hs.Cases {
			steps, err := convertSteps(c.Steps)
			if err != nil {
				return nil, err
			}
			def.Cases[c.Label] = steps
		}
	}
	return def, nil
}

// ctyToGo lowers a cty value into the plain Go shapes the step definitions
// carry. Numbers become float64, matching the JSON decoder.
func ctyToGo(v cty.Value) any {
	if v.IsNull() {
		return nil
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString()
	case t == cty.Bool:
		return v.True()
	case t == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f
	case t.IsObjectType() || t.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			out[k.AsString()] = ctyToGo(ev)
		}
		return out
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		var out []any
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out = append(out, ctyToGo(ev))
		}
		return out
	default:
		return nil
	}
}
