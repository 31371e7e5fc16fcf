package providers

import "strings"

type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList parses a pipe-separated provider spec such as
// "openai|groq:teamkey|mock" into refs; an empty list yields the mock.
func ParseProviderList(raw string) []ProviderRef {
	var out []ProviderRef
	for _, entry := range strings.Split(raw, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		out = append(out, parseRef(entry))
	}
	if len(out) == 0 {
		return []ProviderRef{{Raw: "mock", Name: "mock"}}
	}
	return out
}

func parseRef(entry string) ProviderRef {
	name, alias, found := strings.Cut(entry, ":")
	if !found {
		return ProviderRef{Raw: entry, Name: entry}
	}
	return ProviderRef{
		Raw:      entry,
		Name:     strings.TrimSpace(name),
		KeyAlias: strings.TrimSpace(alias),
	}
}
