package postgres

import (
	"fmt"
	"slices"
	"strings"

	"storyteller/internal/domain"
)

// buildUpdate renders an UPDATE for the given fields. Columns are emitted in
// sorted order so the statement is stable; only columns in writable are
// accepted.
func buildUpdate(table string, writable map[string]bool, id string, fields domain.Fields, returning string) (string, []any, error) {
	columns := make([]string, 0, len(fields))
	for column := range fields {
		if !writable[column] {
			return "", nil, fmt.Errorf("%w: column %q cannot be updated", domain.ErrValidation, column)
		}
		columns = append(columns, column)
	}
	slices.Sort(columns)

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(table)
	sb.WriteString(" SET ")
	args := make([]any, 0, len(columns)+1)

	for i, column := range columns {
		fmt.Fprintf(&sb, "%s = $%d, ", column, i+1)
		args = append(args, fields[column])
	}
	fmt.Fprintf(&sb, "updated_at = now() WHERE id = $%d RETURNING %s", len(columns)+1, returning)
	args = append(args, id)

	return sb.String(), args, nil
}
