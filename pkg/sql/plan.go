package sql

import (
	"github.com/bobboyms/kvsql/pkg/errors"
	"github.com/bobboyms/kvsql/pkg/sql/parser"
)

// Node é um nó executável do plano.
type Node interface {
	execute(txn Transaction) (ResultSet, error)
}

// Plan embrulha o nó raiz de um comando.
type Plan struct {
	Root Node
}

// BuildPlan converte a AST em um plano executável.
func BuildPlan(stmt parser.Statement) (Plan, error) {
	switch s := stmt.(type) {
	case parser.CreateTable:
		table, err := NewTable(s)
		if err != nil {
			return Plan{}, err
		}
		return Plan{Root: &createTableNode{table: table}}, nil

	case parser.Insert:
		return Plan{Root: &insertNode{
			table:   s.Table,
			columns: s.Columns,
			rows:    s.Rows,
		}}, nil

	case parser.Select:
		return Plan{Root: &scanNode{table: s.Table}}, nil
	}
	return Plan{}, errors.Internalf("statement %T has no plan", stmt)
}

// Execute roda o plano dentro de txn.
func (p Plan) Execute(txn Transaction) (ResultSet, error) {
	return p.Root.execute(txn)
}
