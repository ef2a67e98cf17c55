package store

import (
	"fmt"
	"strings"
)

// selectBuilder assembles the optional WHERE/ORDER/LIMIT tail that the list
// queries share, numbering placeholders as it goes.
type selectBuilder struct {
	base       string
	conditions []string
	order      string
	limitArg   string
	args       []any
}

func newSelect(base string) *selectBuilder {
	return &selectBuilder{base: base}
}

// where adds a condition; format must contain exactly one %s for the placeholder.
func (b *selectBuilder) where(format string, arg any) {
	b.args = append(b.args, arg)
	b.conditions = append(b.conditions, fmt.Sprintf(format, fmt.Sprintf("$%d", len(b.args))))
}

// whereRaw adds a condition without an argument.
func (b *selectBuilder) whereRaw(cond string) {
	b.conditions = append(b.conditions, cond)
}

func (b *selectBuilder) orderBy(order string) {
	b.order = order
}

// limit must be called after every where.
func (b *selectBuilder) limit(n int) {
	if n > 0 {
		b.args = append(b.args, n)
		b.limitArg = fmt.Sprintf("$%d", len(b.args))
	}
}

func (b *selectBuilder) sql() string {
	var sb strings.Builder
	sb.WriteString(b.base)
	if len(b.conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.conditions, " AND "))
	}
	if b.order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.order)
	}
	if b.limitArg != "" {
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.limitArg)
	}
	return sb.String()
}
