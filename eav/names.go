package eav

import "strings"

// Name-bearing attributes, by string id. They feed the free-text search
// field and the display name.
const (
	AttrFirstName       = "first_name"
	AttrLastName        = "last_name"
	AttrLegalEntityName = "legal_entity_name"
	AttrRealEstateName  = "real_estate_name"
	AttrMovableName     = "movable_name"
	AttrSavingsName     = "savings_name"

	// AttrLegalEntityType is the codebook attribute classifying legal entities.
	AttrLegalEntityType = "legal_entity_type"
)

// SearchAttributes is the allowlist aggregated into the search field, in output order.
var SearchAttributes = []string{
	AttrFirstName, AttrLastName,
	AttrLegalEntityName, AttrRealEstateName, AttrMovableName, AttrSavingsName,
}

// dedicatedNames are the single-attribute display names, in priority order.
var dedicatedNames = []string{AttrLegalEntityName, AttrRealEstateName, AttrMovableName, AttrSavingsName}

// IsNameAttribute reports whether a string id feeds names or search text.
func IsNameAttribute(stringID string) bool {
	for _, id := range SearchAttributes {
		if id == stringID {
			return true
		}
	}
	return stringID == AttrLegalEntityType
}

// DisplayName builds a display name from string values keyed by attribute string id.
// Dedicated name attributes are concatenated; without any, first and last name are used.
func DisplayName(names map[string][]string) string {
	var parts []string
	for _, id := range dedicatedNames {
		parts = append(parts, names[id]...)
	}
	if len(parts) == 0 {
		parts = append(parts, names[AttrFirstName]...)
		parts = append(parts, names[AttrLastName]...)
	}
	return strings.Join(nonEmpty(parts), " ")
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
