package source

import (
	"database/sql"
	"strings"
	"time"

	"github.com/teranos/prism/eav"
)

// inChunk bounds IN (...) lists below every driver's parameter limit.
const inChunk = 500

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func chunks(ids []int64) [][]int64 {
	var out [][]int64
	for len(ids) > inChunk {
		out = append(out, ids[:inChunk])
		ids = ids[inChunk:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func boolPtr(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Bool
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

// slotColumns lists the slot columns of a table, optionally prefixed
// ("old_", "new_") as on change rows.
func slotColumns(alias, prefix string) string {
	cols := []string{
		"value_boolean", "value_int", "value_fixed_point", "value_float",
		"value_string", "value_text", "value_datetime", "value_date",
		"value_codebook_value_id", "value_geo_lat", "value_geo_lon",
		"value_range_int_from", "value_range_int_to",
		"value_range_fixed_point_from", "value_range_fixed_point_to",
		"value_range_float_from", "value_range_float_to",
		"value_range_date_from", "value_range_date_to",
		"currency_id",
	}
	for i, c := range cols {
		cols[i] = alias + prefix + c
	}
	return strings.Join(cols, ", ")
}

// slotScan holds the nullable scan targets of one slot.
type slotScan struct {
	boolean                  sql.NullBool
	integer, fixed           sql.NullInt64
	float                    sql.NullFloat64
	str, text                sql.NullString
	datetime, date           sql.NullTime
	codebookValueID          sql.NullInt64
	lat, lon                 sql.NullFloat64
	rangeIntFrom, rangeIntTo sql.NullInt64
	rangeFixFrom, rangeFixTo sql.NullInt64
	rangeFlFrom, rangeFlTo   sql.NullFloat64
	rangeDtFrom, rangeDtTo   sql.NullTime
	currencyID               sql.NullInt64
}

func (s *slotScan) targets() []any {
	return []any{
		&s.boolean, &s.integer, &s.fixed, &s.float,
		&s.str, &s.text, &s.datetime, &s.date,
		&s.codebookValueID, &s.lat, &s.lon,
		&s.rangeIntFrom, &s.rangeIntTo,
		&s.rangeFixFrom, &s.rangeFixTo,
		&s.rangeFlFrom, &s.rangeFlTo,
		&s.rangeDtFrom, &s.rangeDtTo,
		&s.currencyID,
	}
}

// slot resolves the scanned columns. Codebook values come from cvs (loaded
// by the caller); a dangling reference stays nil.
func (s *slotScan) slot(cat *catalog, cvs map[int64]*eav.CodebookValue) eav.Slot {
	out := eav.Slot{
		Boolean:        boolPtr(s.boolean),
		Int:            intPtr(s.integer),
		FixedPoint:     intPtr(s.fixed),
		Float:          floatPtr(s.float),
		String:         stringPtr(s.str),
		Text:           stringPtr(s.text),
		DateTime:       timePtr(s.datetime),
		Date:           timePtr(s.date),
		GeoLat:         floatPtr(s.lat),
		GeoLon:         floatPtr(s.lon),
		RangeIntFrom:   intPtr(s.rangeIntFrom),
		RangeIntTo:     intPtr(s.rangeIntTo),
		RangeFixedFrom: intPtr(s.rangeFixFrom),
		RangeFixedTo:   intPtr(s.rangeFixTo),
		RangeFloatFrom: floatPtr(s.rangeFlFrom),
		RangeFloatTo:   floatPtr(s.rangeFlTo),
		RangeDateFrom:  timePtr(s.rangeDtFrom),
		RangeDateTo:    timePtr(s.rangeDtTo),
	}
	if s.codebookValueID.Valid {
		out.CodebookValue = cvs[s.codebookValueID.Int64]
	}
	if s.currencyID.Valid {
		out.Currency = cat.currencies[s.currencyID.Int64]
	}
	return out
}
