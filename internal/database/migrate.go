package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, schemaPath string) error {
	if strings.TrimSpace(schemaPath) == "" {
		schemaPath = "db/schema.sql"
	}

	data, err := os.ReadFile(filepath.Clean(schemaPath))
	if err != nil {
		return fmt.Errorf("read schema file failed (%s): %w", schemaPath, err)
	}

	for _, query := range splitStatements(string(data)) {
		if _, err := pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}

// splitStatements cuts a schema file on semicolons, dropping blank statements
// and whole-line "--" comments.
func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		lines := make([]string, 0)
		for _, line := range strings.Split(stmt, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		query := strings.TrimSpace(strings.Join(lines, "\n"))
		if query == "" {
			continue
		}
		out = append(out, query)
	}
	return out
}
