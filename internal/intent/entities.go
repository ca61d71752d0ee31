package intent

import (
	"strconv"
	"strings"
)

// Entities is the free-form entity object the extractor returns. Typed
// access goes through the getters; post-processing guarantees numeric fields
// arrive as float64 after coercion.
type Entities map[string]any

// String returns the string value under key, or "".
func (e Entities) String(key string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return ""
}

// Float returns the numeric value under key, or 0.
func (e Entities) Float(key string) float64 {
	switch v := e[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return 0
}

// Bool returns the boolean value under key, or false.
func (e Entities) Bool(key string) bool {
	switch v := e[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return false
}

// Has reports whether key is present with a non-empty value.
func (e Entities) Has(key string) bool {
	v, ok := e[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Item is one invoice line as spoken by the operator.
type Item struct {
	Product  string
	Quantity int
	Unit     string
}

// Items decodes the "items" entity into invoice lines. Entries that lack a
// product name are dropped; missing quantities default to 1.
func (e Entities) Items() []Item {
	raw, ok := e["items"].([]any)
	if !ok {
		return nil
	}
	var items []Item
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		em := Entities(m)
		product := em.String("product")
		if product == "" {
			product = em.String("name")
		}
		if product == "" {
			continue
		}
		qty := int(em.Float("quantity"))
		if qty <= 0 {
			qty = 1
		}
		items = append(items, Item{
			Product:  product,
			Quantity: qty,
			Unit:     em.String("unit"),
		})
	}
	return items
}

// Extraction is a fully post-processed command.
type Extraction struct {
	// Normalized is the cleaned-up transcript the LLM understood.
	Normalized string `json:"normalized"`

	// Intent is from the closed vocabulary; UNKNOWN when extraction failed.
	Intent Intent `json:"intent"`

	// Entities carries the intent's parameters.
	Entities Entities `json:"entities"`

	// Confidence is the extractor's self-assessment in [0, 1].
	Confidence float64 `json:"confidence"`
}
