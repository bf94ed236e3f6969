package shared

import (
	"strconv"
	"strings"
)

// Where accumulates positional SQL predicates for the dynamic list queries.
type Where struct {
	clauses []string
	args    []any
}

// Add appends a predicate. Each "?" in clause is replaced by the next
// positional placeholder and bound to the matching arg.
func (w *Where) Add(clause string, args ...any) {
	var b strings.Builder
	i := 0
	for _, r := range clause {
		if r == '?' && i < len(args) {
			w.args = append(w.args, args[i])
			b.WriteString("$" + strconv.Itoa(len(w.args)))
			i++
			continue
		}
		b.WriteRune(r)
	}
	w.clauses = append(w.clauses, b.String())
}

// SQL renders the WHERE clause, or an empty string without predicates.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Args returns the bound arguments.
func (w *Where) Args() []any {
	return append([]any(nil), w.args...)
}

// Next returns the placeholder for an argument appended after the predicates.
func (w *Where) Next(offset int) string {
	return "$" + strconv.Itoa(len(w.args)+offset)
}
