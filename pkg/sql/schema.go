package sql

import (
	"fmt"

	"github.com/bobboyms/kvsql/pkg/errors"
	"github.com/bobboyms/kvsql/pkg/sql/parser"
	"github.com/bobboyms/kvsql/pkg/types"
)

// Column é a definição persistida de uma coluna.
type Column struct {
	Name       string         `bson:"name"`
	Type       types.DataType `bson:"type"`
	PrimaryKey bool           `bson:"primary_key"`
	Nullable   bool           `bson:"nullable"`
	HasDefault bool           `bson:"has_default"`
	Default    any            `bson:"default"`
}

// Table é o schema persistido de uma tabela.
type Table struct {
	Name    string   `bson:"name"`
	Columns []Column `bson:"columns"`
}

// NewTable resolve um CREATE TABLE parseado para o schema persistido:
// nullability implícita (primary key vira NOT NULL, o resto NULL) e
// validação estrutural.
func NewTable(stmt parser.CreateTable) (Table, error) {
	table := Table{Name: stmt.Name}

	for _, spec := range stmt.Columns {
		nullable := !spec.PrimaryKey
		if spec.Nullable != nil {
			nullable = *spec.Nullable
		}
		table.Columns = append(table.Columns, Column{
			Name:       spec.Name,
			Type:       spec.Type,
			PrimaryKey: spec.PrimaryKey,
			Nullable:   nullable,
			HasDefault: spec.HasDefault,
			Default:    spec.Default,
		})
	}

	if err := table.Validate(); err != nil {
		return Table{}, err
	}
	return table, nil
}

// Validate checa as invariantes do schema.
func (t Table) Validate() error {
	if t.Name == "" {
		return errors.Internalf("table has no name")
	}
	if len(t.Columns) == 0 {
		return errors.Internalf("table %q has no columns", t.Name)
	}

	primaries := 0
	for _, col := range t.Columns {
		if col.PrimaryKey {
			primaries++
			if col.Nullable {
				return errors.Internalf("primary key column %q cannot be nullable", col.Name)
			}
		}
		if col.HasDefault && col.Default != nil {
			if err := checkValueType(col, col.Default); err != nil {
				return fmt.Errorf("invalid default for column %q: %w", col.Name, err)
			}
		}
	}
	if primaries == 0 {
		return &errors.PrimarykeyNotDefinedError{TableName: t.Name}
	}
	if primaries > 1 {
		return &errors.TwoPrimarykeysError{Total: primaries}
	}
	return nil
}

// PrimaryKey retorna a coluna de chave primária e seu índice.
func (t Table) PrimaryKey() (Column, int) {
	for i, col := range t.Columns {
		if col.PrimaryKey {
			return col, i
		}
	}
	// Validate garante que existe
	return Column{}, -1
}

// checkValueType confere que um literal casa com o tipo da coluna.
// Inteiros são aceitos onde a coluna é FLOAT (promoção implícita).
func checkValueType(col Column, v any) error {
	switch v.(type) {
	case int64:
		if col.Type == types.TypeInt || col.Type == types.TypeFloat {
			return nil
		}
	case float64:
		if col.Type == types.TypeFloat {
			return nil
		}
	case bool:
		if col.Type == types.TypeBoolean {
			return nil
		}
	case string:
		if col.Type == types.TypeVarchar {
			return nil
		}
	default:
		return errors.Internalf("unsupported literal type %T", v)
	}
	return errors.Internalf("column %q expects %s, got %T", col.Name, col.Type, v)
}

// normalizeValue aplica a promoção implícita (int para coluna FLOAT).
func normalizeValue(col Column, v any) any {
	if n, ok := v.(int64); ok && col.Type == types.TypeFloat {
		return float64(n)
	}
	return v
}
