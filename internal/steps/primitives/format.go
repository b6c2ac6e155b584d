package primitives

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

var placeholderRe = regexp.MustCompile(`\{([^}]+)\}`)

// StringFormat substitutes {name} placeholders from the context into a
// template. The template input either names a context key holding the
// template string or is the literal template itself. Placeholders resolve
// against the context first, then against an optional values map.
type StringFormat struct {
	logger *slog.Logger
}

func (s *StringFormat) PluginID() string { return "string.format" }

func (s *StringFormat) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	templateKey, err := engine.InputKey(def, "template")
	if err != nil {
		return err
	}
	outKey, err := engine.OutputKey(def, "result")
	if err != nil {
		return err
	}

	template := wc.GetString(templateKey, templateKey)

	var values map[string]any
	if valuesKey, ok := engine.OptionalInputKey(def, "values"); ok {
		values, _ = wfctx.TryGet[map[string]any](wc, valuesKey)
	}

	var missing string
	result := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "{"), "}")
		if v, ok := wc.Get(name); ok {
			return formatValue(v)
		}
		if v, ok := values[name]; ok {
			return formatValue(v)
		}
		if missing == "" {
			missing = name
		}
		return match
	})
	if missing != "" {
		return schema.NewErrorf(schema.ErrCodeMissingContextValue,
			"placeholder {%s} not found", missing)
	}

	wc.Set(outKey, result)
	s.logger.DebugContext(ctx, "string formatted", "output", outKey, "length", len(result))
	return nil
}
