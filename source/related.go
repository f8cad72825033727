package source

import (
	"context"
	"strings"
	"time"

	"github.com/teranos/prism/errors"
)

// Model names a source table that can be mutated.
type Model string

const (
	ModelEntity               Model = "entity"
	ModelConnection           Model = "entity_entity"
	ModelAttribute            Model = "attribute"
	ModelAttributeType        Model = "attribute_type"
	ModelAttributeValue       Model = "attribute_value"
	ModelValueMembership      Model = "attribute_value_collection"
	ModelConnectionMembership Model = "entity_entity_collection"
	ModelCollection           Model = "collection"
	ModelSource               Model = "source"
	ModelCodebook             Model = "codebook"
	ModelCodebookValue        Model = "codebook_value"
	ModelConnectionType       Model = "connection_type"
	ModelCategory             Model = "connection_type_category"
	ModelCurrency             Model = "currency"
	ModelEntityType           Model = "entity_type"
	ModelChangeType           Model = "change_type"
	ModelChangeset            Model = "changeset"
	ModelAttributeValueChange Model = "attribute_value_change"
	ModelConnectionChange     Model = "entity_entity_change"
)

// Models lists every mutable model in reconcile scan order.
var Models = []Model{
	ModelEntityType, ModelChangeType, ModelCurrency,
	ModelSource, ModelCollection,
	ModelCodebook, ModelCodebookValue,
	ModelCategory, ModelConnectionType,
	ModelAttributeType, ModelAttribute,
	ModelEntity, ModelConnection,
	ModelAttributeValue, ModelValueMembership, ModelConnectionMembership,
	ModelChangeset, ModelAttributeValueChange, ModelConnectionChange,
}

// ParseModel validates a model name.
func ParseModel(s string) (Model, error) {
	for _, m := range Models {
		if string(m) == s {
			return m, nil
		}
	}
	return "", errors.NewInvalidRequestError("unknown model %q", s)
}

type edge struct{ from, to Model }

// relations maps a (from, to) pair to a query returning the ids of to-rows
// related to one from-row. Each ? binds the from id.
var relations = map[edge]string{
	{ModelEntity, ModelConnection}:           `SELECT id FROM entity_entity WHERE entity_a_id = ? OR entity_b_id = ?`,
	{ModelEntity, ModelEntity}:               `SELECT entity_b_id FROM entity_entity WHERE entity_a_id = ? UNION SELECT entity_a_id FROM entity_entity WHERE entity_b_id = ?`,
	{ModelEntity, ModelAttributeValueChange}: `SELECT id FROM attribute_value_change WHERE entity_id = ?`,

	{ModelConnection, ModelEntity}:               `SELECT entity_a_id FROM entity_entity WHERE id = ? UNION SELECT entity_b_id FROM entity_entity WHERE id = ?`,
	{ModelConnection, ModelAttributeValueChange}: `SELECT id FROM attribute_value_change WHERE entity_entity_id = ?`,
	{ModelConnection, ModelConnectionChange}:     `SELECT id FROM entity_entity_change WHERE entity_entity_id = ?`,

	{ModelAttribute, ModelEntity}:               `SELECT DISTINCT entity_id FROM attribute_value WHERE attribute_id = ? AND entity_id IS NOT NULL`,
	{ModelAttribute, ModelConnection}:           `SELECT DISTINCT entity_entity_id FROM attribute_value WHERE attribute_id = ? AND entity_entity_id IS NOT NULL`,
	{ModelAttribute, ModelAttributeValueChange}: `SELECT id FROM attribute_value_change WHERE attribute_id = ?`,

	{ModelAttributeType, ModelAttribute}: `SELECT id FROM attribute WHERE attribute_type_id = ?`,

	{ModelAttributeValue, ModelEntity}:               `SELECT entity_id FROM attribute_value WHERE id = ?`,
	{ModelAttributeValue, ModelConnection}:           `SELECT entity_entity_id FROM attribute_value WHERE id = ?`,
	{ModelAttributeValue, ModelAttributeValueChange}: `SELECT id FROM attribute_value_change WHERE attribute_value_id = ?`,

	{ModelValueMembership, ModelAttributeValue}:  `SELECT attribute_value_id FROM attribute_value_collection WHERE id = ?`,
	{ModelConnectionMembership, ModelConnection}: `SELECT entity_entity_id FROM entity_entity_collection WHERE id = ?`,

	{ModelCollection, ModelAttribute}:      `SELECT id FROM attribute WHERE collection_id = ?`,
	{ModelCollection, ModelAttributeValue}: `SELECT DISTINCT attribute_value_id FROM attribute_value_collection WHERE collection_id = ?`,
	{ModelCollection, ModelConnection}:     `SELECT DISTINCT entity_entity_id FROM entity_entity_collection WHERE collection_id = ?`,
	{ModelCollection, ModelChangeset}:      `SELECT id FROM changeset WHERE collection_id = ?`,
	{ModelCollection, ModelSource}:         `SELECT source_id FROM collection WHERE id = ?`,

	{ModelSource, ModelCollection}: `SELECT id FROM collection WHERE source_id = ?`,

	{ModelCodebook, ModelAttributeType}: `SELECT id FROM attribute_type WHERE codebook_id = ?`,
	{ModelCodebook, ModelCodebookValue}: `SELECT id FROM codebook_value WHERE codebook_id = ?`,

	{ModelCodebookValue, ModelAttributeValue}:       `SELECT id FROM attribute_value WHERE value_codebook_value_id = ?`,
	{ModelCodebookValue, ModelAttributeValueChange}: `SELECT id FROM attribute_value_change WHERE old_value_codebook_value_id = ? OR new_value_codebook_value_id = ?`,

	{ModelConnectionType, ModelConnection}: `SELECT id FROM entity_entity WHERE connection_type_id = ?`,

	{ModelCategory, ModelConnectionType}: `SELECT id FROM connection_type WHERE category_id = ?`,
	{ModelCategory, ModelConnection}: `SELECT ee.id FROM entity_entity ee
		JOIN connection_type ct ON ct.id = ee.connection_type_id WHERE ct.category_id = ?`,
	{ModelCategory, ModelEntity}: `SELECT ee.entity_a_id FROM entity_entity ee
		JOIN connection_type ct ON ct.id = ee.connection_type_id WHERE ct.category_id = ?
		UNION SELECT ee.entity_b_id FROM entity_entity ee
		JOIN connection_type ct ON ct.id = ee.connection_type_id WHERE ct.category_id = ?`,

	{ModelCurrency, ModelAttributeValue}:       `SELECT id FROM attribute_value WHERE currency_id = ?`,
	{ModelCurrency, ModelAttributeValueChange}: `SELECT id FROM attribute_value_change WHERE old_currency_id = ? OR new_currency_id = ?`,
	{ModelCurrency, ModelConnection}:           `SELECT id FROM entity_entity WHERE transaction_currency_id = ?`,
	{ModelCurrency, ModelConnectionChange}:     `SELECT id FROM entity_entity_change WHERE old_transaction_currency_id = ? OR new_transaction_currency_id = ?`,

	{ModelEntityType, ModelEntity}:    `SELECT id FROM entity WHERE entity_type_id = ?`,
	{ModelEntityType, ModelAttribute}: `SELECT id FROM attribute WHERE entity_type_id = ?`,

	{ModelChangeType, ModelChangeset}: `SELECT id FROM changeset WHERE change_type_id = ?`,

	{ModelChangeset, ModelAttributeValueChange}: `SELECT id FROM attribute_value_change WHERE changeset_id = ?`,
	{ModelChangeset, ModelConnectionChange}:     `SELECT id FROM entity_entity_change WHERE changeset_id = ?`,
	{ModelChangeset, ModelCollection}:           `SELECT collection_id FROM changeset WHERE id = ?`,
}

// Related returns the ids of target rows related to one row of from.
func (r *Reader) Related(ctx context.Context, from Model, id int64, target Model) ([]int64, error) {
	q, ok := relations[edge{from, target}]
	if !ok {
		return nil, errors.NewInvalidRequestError("no relation from %s to %s", from, target)
	}
	args := make([]any, strings.Count(q, "?"))
	for i := range args {
		args[i] = id
	}
	ids, err := r.ids(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s %d -> %s", from, id, target)
	}
	return ids, nil
}

// Exists reports whether a row of model with id is present.
func (r *Reader) Exists(ctx context.Context, model Model, id int64) (bool, error) {
	if _, err := ParseModel(string(model)); err != nil {
		return false, err
	}
	ids, err := r.ids(ctx, `SELECT id FROM `+string(model)+` WHERE id = ?`, id)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check %s %d", model, id)
	}
	return len(ids) > 0, nil
}

// IDs pages through the ids of model in ascending order.
func (r *Reader) IDs(ctx context.Context, model Model, afterID int64, limit int) ([]int64, error) {
	if _, err := ParseModel(string(model)); err != nil {
		return nil, err
	}
	ids, err := r.ids(ctx, `SELECT id FROM `+string(model)+` WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to page %s", model)
	}
	return ids, nil
}

// ModifiedSince pages through the ids of model rows updated at or after since.
func (r *Reader) ModifiedSince(ctx context.Context, model Model, since time.Time, afterID int64, limit int) ([]int64, error) {
	if _, err := ParseModel(string(model)); err != nil {
		return nil, err
	}
	ids, err := r.ids(ctx, `SELECT id FROM `+string(model)+` WHERE updated_at >= ? AND id > ? ORDER BY id LIMIT ?`,
		since.UTC(), afterID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s since %s", model, since.Format(time.RFC3339))
	}
	return ids, nil
}
