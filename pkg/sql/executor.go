package sql

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/kvsql/pkg/errors"
)

// ResultSet é o resultado de um comando executado.
type ResultSet interface {
	resultSet()
}

// CreateTableResult confirma um CREATE TABLE.
type CreateTableResult struct {
	Name string
}

// InsertResult informa quantas linhas foram inseridas.
type InsertResult struct {
	Count int
}

// ScanResult carrega as linhas de um SELECT, em ordem de chave primária.
type ScanResult struct {
	Columns []string
	Rows    []bson.D
}

// TxnResult confirma um BEGIN / COMMIT / ROLLBACK da sessão.
type TxnResult struct {
	Action string
}

func (CreateTableResult) resultSet() {}
func (InsertResult) resultSet()      {}
func (ScanResult) resultSet()        {}
func (TxnResult) resultSet()         {}

type createTableNode struct {
	table Table
}

func (n *createTableNode) execute(txn Transaction) (ResultSet, error) {
	if err := txn.CreateTable(n.table); err != nil {
		return nil, err
	}
	return CreateTableResult{Name: n.table.Name}, nil
}

type insertNode struct {
	table   string
	columns []string
	rows    [][]any
}

func (n *insertNode) execute(txn Transaction) (ResultSet, error) {
	table, err := txn.MustGetTable(n.table)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, values := range n.rows {
		var row []any
		if len(n.columns) == 0 {
			row, err = padRow(table, values)
		} else {
			row, err = makeRow(table, n.columns, values)
		}
		if err != nil {
			return nil, err
		}

		if err := txn.CreateRow(n.table, row); err != nil {
			return nil, err
		}
		count++
	}
	return InsertResult{Count: count}, nil
}

// padRow alinha um VALUES sem lista de colunas: os valores preenchem as
// primeiras colunas e o resto recebe default.
//
//	insert into tbl values (1, 2);
//	a    b    c (default)
//	1    2    default
func padRow(table Table, values []any) ([]any, error) {
	if len(values) > len(table.Columns) {
		return nil, errors.Internalf("too many values for table %q", table.Name)
	}

	row := append([]any(nil), values...)
	for _, col := range table.Columns[len(values):] {
		if !col.HasDefault {
			return nil, errors.Internalf("no default value for column %q", col.Name)
		}
		row = append(row, col.Default)
	}
	return row, nil
}

// makeRow alinha um VALUES com lista de colunas: cada coluna citada recebe
// seu valor e as demais recebem default.
//
//	insert into tbl (d, c) values (1, 2);
//	a (default)  b (default)  c=2  d=1
func makeRow(table Table, columns []string, values []any) ([]any, error) {
	if len(columns) != len(values) {
		return nil, errors.Internalf("columns and values count mismatch")
	}

	inputs := make(map[string]any, len(columns))
	for i, name := range columns {
		if _, dup := inputs[name]; dup {
			return nil, errors.Internalf("duplicate column %q in insert", name)
		}
		inputs[name] = values[i]
	}

	row := make([]any, 0, len(table.Columns))
	for _, col := range table.Columns {
		if val, ok := inputs[col.Name]; ok {
			row = append(row, val)
			delete(inputs, col.Name)
			continue
		}
		if !col.HasDefault {
			return nil, errors.Internalf("no value given for column %q", col.Name)
		}
		row = append(row, col.Default)
	}

	for name := range inputs {
		return nil, errors.Internalf("unknown column %q in insert", name)
	}
	return row, nil
}

type scanNode struct {
	table string
}

func (n *scanNode) execute(txn Transaction) (ResultSet, error) {
	table, err := txn.MustGetTable(n.table)
	if err != nil {
		return nil, err
	}

	rows, err := txn.ScanTable(n.table)
	if err != nil {
		return nil, err
	}

	columns := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		columns[i] = col.Name
	}
	return ScanResult{Columns: columns, Rows: rows}, nil
}
