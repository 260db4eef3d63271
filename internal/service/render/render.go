package render

import (
	"strings"

	"github.com/fieldserve/sms-engine/internal/model"
)

// Context is the flat variable-name-to-value mapping a template is
// filled from.
type Context map[string]string

// Render substitutes {{name}} placeholders from ctx. Unknown
// placeholders are left verbatim so a template author sees the miss in
// the preview instead of a silent blank. Returns the rendered text and
// the placeholder names that were actually substituted.
//
// This is the single rendering implementation: the send path and the
// template editor preview both call it, so they cannot drift.
func Render(body string, ctx Context) (string, []string) {
	var used []string
	seen := make(map[string]bool)

	rendered := model.PlaceholderPattern.ReplaceAllStringFunc(body, func(placeholder string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(placeholder, "{{"), "}}")
		value, ok := ctx[name]
		if !ok {
			return placeholder
		}
		if !seen[name] {
			seen[name] = true
			used = append(used, name)
		}
		return value
	})

	return rendered, used
}

// UnresolvedPlaceholders returns placeholder names left in rendered
// output, for the render-warning attached to the message.
func UnresolvedPlaceholders(rendered string) []string {
	return model.ExtractPlaceholders(rendered)
}

// Truncate deterministically caps text at limit runes, replacing the
// tail with an ellipsis. Never fails a send solely for length.
func Truncate(text string, limit int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	if limit <= 1 {
		return string(runes[:limit]), true
	}
	return string(runes[:limit-1]) + "…", true
}
