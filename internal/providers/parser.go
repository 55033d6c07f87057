package providers

import "strings"

// ProviderRef is one entry of a provider list such as "openai:gpt-4o|mock".
// KeyAlias carries whatever follows the colon; generators read it as a model.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList splits on "|" or ",". Names are lowercased, duplicates
// keep their first position, and an empty list means mock.
func ParseProviderList(raw string) []ProviderRef {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == '|' || r == ',' })
	out := make([]ProviderRef, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[strings.ToLower(p)] {
			continue
		}
		seen[strings.ToLower(p)] = true
		ref := ProviderRef{Raw: p}
		name, alias, found := strings.Cut(p, ":")
		ref.Name = strings.ToLower(strings.TrimSpace(name))
		if found {
			ref.KeyAlias = strings.TrimSpace(alias)
		}
		out = append(out, ref)
	}
	if len(out) == 0 {
		out = append(out, ProviderRef{Raw: "mock", Name: "mock"})
	}
	return out
}
