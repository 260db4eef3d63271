package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	body := "Hi {{customer_first_name}}, {{company_name}} will arrive at {{eta_time}}"

	t.Run("substitutes all known placeholders", func(t *testing.T) {
		rendered, used := Render(body, Context{
			"customer_first_name": "Sam",
			"company_name":        "Acme",
			"eta_time":            "2:30 PM",
		})

		assert.Equal(t, "Hi Sam, Acme will arrive at 2:30 PM", rendered)
		assert.Equal(t, []string{"customer_first_name", "company_name", "eta_time"}, used)
	})

	t.Run("leaves unknown placeholders verbatim", func(t *testing.T) {
		rendered, used := Render(body, Context{
			"customer_first_name": "Sam",
			"company_name":        "Acme",
		})

		assert.Equal(t, "Hi Sam, Acme will arrive at {{eta_time}}", rendered)
		assert.Equal(t, []string{"customer_first_name", "company_name"}, used)
		assert.Equal(t, []string{"eta_time"}, UnresolvedPlaceholders(rendered))
	})

	t.Run("empty context keeps body intact", func(t *testing.T) {
		rendered, used := Render(body, Context{})
		assert.Equal(t, body, rendered)
		assert.Empty(t, used)
	})

	t.Run("repeated placeholder reported once", func(t *testing.T) {
		rendered, used := Render("{{name}} {{name}}", Context{"name": "Sam"})
		assert.Equal(t, "Sam Sam", rendered)
		assert.Equal(t, []string{"name"}, used)
	})

	t.Run("no expressions or nested grammar", func(t *testing.T) {
		body := "{{a.b}} {{a b}} {{ a }} {{if x}}"
		rendered, used := Render(body, Context{"a": "1", "x": "2"})
		assert.Equal(t, body, rendered)
		assert.Empty(t, used)
	})

	t.Run("deterministic for identical input", func(t *testing.T) {
		ctx := Context{"customer_first_name": "Sam", "company_name": "Acme", "eta_time": "2:30 PM"}
		first, _ := Render(body, ctx)
		second, _ := Render(body, ctx)
		assert.Equal(t, first, second)
	})
}

func TestTruncate(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		out, truncated := Truncate("hello", 1600)
		assert.Equal(t, "hello", out)
		assert.False(t, truncated)
	})

	t.Run("long text capped with ellipsis", func(t *testing.T) {
		out, truncated := Truncate(strings.Repeat("a", 2000), 1600)
		assert.True(t, truncated)
		runes := []rune(out)
		assert.Len(t, runes, 1600)
		assert.Equal(t, '…', runes[1599])
	})

	t.Run("exact limit untouched", func(t *testing.T) {
		text := strings.Repeat("a", 1600)
		out, truncated := Truncate(text, 1600)
		assert.Equal(t, text, out)
		assert.False(t, truncated)
	})
}
