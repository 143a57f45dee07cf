package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

// Postgres validates the target list of ON CONFLICT ... DO UPDATE at parse
// time, so a column the stores assign must exist in the DDL or the whole
// statement fails with undefined_column before any row work.
func TestUpsertTargetColumnsExist(t *testing.T) {
	tests := []struct {
		file    string
		table   string
		columns []string
	}{
		{"0001_create_contacts.up.sql", "contacts", []string{"name", "updated_at"}},
		{"0004_create_messages.up.sql", "old_messages", []string{"body", "ticket_id", "updated_at"}},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			data, err := fs.ReadFile(FS, tt.file)
			if err != nil {
				t.Fatalf("read %s: %v", tt.file, err)
			}
			ddl := tableDDL(t, string(data), tt.table)
			for _, col := range tt.columns {
				if !strings.Contains(ddl, col) {
					t.Errorf("table %s has no %q column", tt.table, col)
				}
			}
		})
	}
}

// tableDDL extracts one CREATE TABLE block from a migration file.
func tableDDL(t *testing.T, sql, table string) string {
	t.Helper()
	marker := "CREATE TABLE IF NOT EXISTS " + table + " ("
	start := strings.Index(sql, marker)
	if start < 0 {
		t.Fatalf("no CREATE TABLE for %s", table)
	}
	rest := sql[start:]
	end := strings.Index(rest, ");")
	if end < 0 {
		t.Fatalf("unterminated CREATE TABLE for %s", table)
	}
	return rest[:end]
}
