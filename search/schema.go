package search

import (
	"regexp"
	"strings"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/visibility"
)

// Analyzer is the full-text analyzer behind every search field.
const Analyzer = "prism_text"

// exactFields are the keyword lookups indexed per kind.
var exactFields = map[projection.Kind][]string{
	projection.KindEntity:               {"public_id", "type.name", "potentially_pep", "published", "deleted"},
	projection.KindConnection:           {"entity_a.public_id", "entity_b.public_id", "connection_type.id", "published", "deleted"},
	projection.KindAttribute:            {"string_id", "published", "deleted"},
	projection.KindConnectionType:       {"name_exact", "published", "deleted"},
	projection.KindCodebookValue:        {"value_exact", "codebook.id", "published", "deleted"},
	projection.KindAttributeValueChange: {"attribute.id", "entity.public_id", "attribute_value_id", "published", "deleted"},
	projection.KindConnectionChange:     {"connection.id", "published", "deleted"},
}

// SchemaStatements lists the SurrealQL that defines every table. All of it
// is idempotent.
func SchemaStatements() []string {
	stmts := []string{
		`DEFINE ANALYZER IF NOT EXISTS ` + Analyzer + ` TOKENIZERS blank,class,punct FILTERS lowercase,ascii,edgengram(2,15)`,
	}
	for _, k := range projection.Kinds {
		for _, v := range visibility.Variants {
			t := projection.Table(k, v)
			stmts = append(stmts,
				`DEFINE TABLE IF NOT EXISTS `+t+` SCHEMALESS`,
				`DEFINE INDEX IF NOT EXISTS `+t+`_search ON TABLE `+t+` FIELDS search SEARCH ANALYZER `+Analyzer+` BM25`,
			)
			for _, f := range exactFields[k] {
				stmts = append(stmts, `DEFINE INDEX IF NOT EXISTS `+t+`_`+indexName(f)+` ON TABLE `+t+` FIELDS `+f)
			}
		}
	}
	return stmts
}

var identifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// AttributeFieldStatements defines attributes.<string_id> on the tables whose
// documents can carry the attribute: entity tables for entity-typed roots,
// connection tables otherwise. Codebook attributes also index their value ids,
// text attributes the analyzed values.
func AttributeFieldStatements(a *eav.Attribute) ([]string, error) {
	if a == nil {
		return nil, errors.NewInvalidRequestError("attribute missing")
	}
	if !identifier.MatchString(a.StringID) {
		return nil, errors.NewInvalidRequestError("attribute string id %q is not a valid field name", a.StringID)
	}
	if !a.IsRoot() {
		// Sub-attributes live inside their root's value objects
		return nil, nil
	}

	kind := projection.KindConnection
	if a.EntityType != nil {
		kind = projection.KindEntity
	}
	field := "attributes." + a.StringID

	var stmts []string
	for _, v := range visibility.Variants {
		t := projection.Table(kind, v)
		stmts = append(stmts, `DEFINE FIELD IF NOT EXISTS `+field+` ON TABLE `+t+` TYPE option<array<object> | null>`)
		switch a.DataType() {
		case eav.CodebookRef:
			stmts = append(stmts, `DEFINE INDEX IF NOT EXISTS `+t+`_attr_`+a.StringID+` ON TABLE `+t+` FIELDS `+field+`.*.value_id`)
		case eav.String, eav.Text:
			stmts = append(stmts, `DEFINE INDEX IF NOT EXISTS `+t+`_attr_`+a.StringID+` ON TABLE `+t+` FIELDS `+field+`.*.value SEARCH ANALYZER `+Analyzer+` BM25`)
		}
	}
	return stmts, nil
}

func indexName(field string) string {
	return strings.ReplaceAll(field, ".", "_")
}
