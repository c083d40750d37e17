package sqlagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/receiptqa/server/internal/store"
)

// Catalog is the store's schema catalog.
type Catalog interface {
	TablesSchema(ctx context.Context) ([]store.Table, error)
	ColumnsSchema(ctx context.Context, tableSchema, tableName string) ([]store.Column, error)
}

// Introspector renders the store catalog as text for the query generator.
type Introspector struct {
	catalog Catalog
}

func NewIntrospector(catalog Catalog) *Introspector {
	return &Introspector{catalog: catalog}
}

// DescribeSchema lists every exposed relation with its columns, types and
// comments. Output is deterministic for a fixed schema. Errors are returned
// as-is; an unreachable store is fatal for the caller.
func (i *Introspector) DescribeSchema(ctx context.Context) (string, error) {
	tables, err := i.catalog.TablesSchema(ctx)
	if err != nil {
		return "", fmt.Errorf("describe tables: %w", err)
	}

	var b strings.Builder
	for _, t := range tables {
		fmt.Fprintf(&b, "Table: %s.%s\n", t.Schema, t.Name)
		fmt.Fprintf(&b, "Description: %s.\n", comment(t.Comment))
		b.WriteString("Columns:\n")

		columns, err := i.catalog.ColumnsSchema(ctx, t.Schema, t.Name)
		if err != nil {
			return "", fmt.Errorf("describe columns of %s.%s: %w", t.Schema, t.Name, err)
		}
		for _, c := range columns {
			fmt.Fprintf(&b, "  %s (%s): %s.\n", c.Name, c.Type, comment(c.Comment))
		}
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func comment(c *string) string {
	if c == nil || strings.TrimSpace(*c) == "" {
		return "no description"
	}
	return strings.TrimRight(strings.TrimSpace(*c), ".")
}
