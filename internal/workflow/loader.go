// Package workflow loads workflow definitions from JSON and HCL documents
// and validates them before execution.
package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/renderflow/engine/internal/validation"
	"github.com/renderflow/engine/pkg/schema"
)

// Loader parses workflow documents and runs them through the validator.
type Loader struct {
	validator validation.Validator
}

// NewLoader creates a Loader. validator may be nil to skip validation.
func NewLoader(validator validation.Validator) *Loader {
	return &Loader{validator: validator}
}

// Load reads a workflow file, picking the parser from the extension:
// .json for JSON documents, .hcl for HCL documents.
func (l *Loader) Load(path string) (*schema.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeIO, "read workflow %s", path).WithCause(err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return l.LoadJSON(data)
	case ".hcl":
		return l.LoadHCL(path, data)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unsupported workflow format %q (want .json or .hcl)", filepath.Ext(path))
	}
}

// LoadJSON decodes and validates a JSON workflow document.
func (l *Loader) LoadJSON(data []byte) (*schema.WorkflowDefinition, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()

	var def schema.WorkflowDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode workflow JSON").WithCause(err)
	}
	return l.validated(&def)
}

func (l *Loader) validated(def *schema.WorkflowDefinition) (*schema.WorkflowDefinition, error) {
	if l.validator != nil {
		if err := l.validator.ValidateDefinition(def); err != nil {
			return nil, err
		}
	}
	return def, nil
}
