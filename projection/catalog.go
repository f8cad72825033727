package projection

import (
	"strings"

	"github.com/teranos/prism/eav"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/visibility"
)

// ConnectionType builds the connection-type document. The *_exact fields are
// indexed as keywords; the plain ones are analyzed.
func ConnectionType(t *eav.ConnectionType, v visibility.Variant) (Document, bool, error) {
	if t == nil {
		return nil, false, errors.NewInvalidRequestError("connection type missing")
	}
	st := visibility.ConnectionType(t)
	if !v.Includes(st) {
		return nil, false, nil
	}
	doc := Document{
		"id":                 t.ID,
		"name":               t.Name,
		"name_exact":         t.Name,
		"reverse_name":       t.ReverseName,
		"reverse_name_exact": t.ReverseName,
		"potentially_pep":    t.PotentiallyPEP,
		"category":           categoryObject(t.Category),
		"search":             strings.TrimSpace(t.Name + " " + t.ReverseName),
	}
	status(doc, st)
	return doc, true, nil
}

// CodebookValue builds the codebook-value document.
func CodebookValue(cv *eav.CodebookValue, v visibility.Variant) (Document, bool, error) {
	if cv == nil {
		return nil, false, errors.NewInvalidRequestError("codebook value missing")
	}
	st := visibility.CodebookValue(cv)
	if !v.Includes(st) {
		return nil, false, nil
	}
	doc := Document{
		"id":          cv.ID,
		"value":       cv.Value,
		"value_exact": cv.Value,
		"codebook":    codebookObject(cv.Codebook),
		"search":      cv.Value,
	}
	status(doc, st)
	return doc, true, nil
}
