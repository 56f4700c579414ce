package postprocess

import (
	"strings"

	"github.com/askstream/askstream/pkg/types"
)

// Schema.org fields that may hold an address, in lookup order.
var addressFields = []string{"address", "location", "streetAddress", "postalAddress"}

// Sub-fields assembled into a printable address, in output order.
var addressParts = []string{"streetAddress", "addressLocality", "addressRegion", "postalCode"}

// extractAddress derives a printable address from a result's schema
// attributes, or "" when none can be found.
func extractAddress(res *types.Result) string {
	if res.Extra == nil {
		return ""
	}

	var raw any
	for _, field := range addressFields {
		if v, ok := res.Extra.Get(field); ok && v != nil {
			raw = v
			break
		}
	}
	if raw == nil {
		return ""
	}

	switch v := raw.(type) {
	case string:
		// Strings with an embedded object keep only the leading text.
		if i := strings.Index(v, ", {"); i >= 0 {
			return v[:i]
		}
		return v
	case map[string]any:
		return assembleAddress(v)
	}
	return ""
}

func assembleAddress(obj map[string]any) string {
	var parts []string
	for _, field := range addressParts {
		if v, ok := obj[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
	}

	switch country := obj["addressCountry"].(type) {
	case map[string]any:
		if name, ok := country["name"].(string); ok && name != "" {
			parts = append(parts, name)
		}
	case string:
		if country != "" && !strings.HasPrefix(country, "{") {
			parts = append(parts, country)
		}
	}

	return strings.Join(parts, ", ")
}
