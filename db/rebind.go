package db

import (
	"strconv"
	"strings"
)

// Placeholder styles understood by Rebind
const (
	PlaceholderQuestion = iota // sqlite3: ?
	PlaceholderDollar          // pgx: $1, $2, ...
)

// Rebind rewrites ? placeholders into the target style. Question marks inside
// single-quoted literals are left alone.
func Rebind(style int, query string) string {
	if style != PlaceholderDollar {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
