package parser

import "github.com/bobboyms/kvsql/pkg/types"

// Statement é o nó raiz de um comando SQL parseado.
type Statement interface {
	stmt()
}

// CreateTable: CREATE TABLE nome (colunas...)
type CreateTable struct {
	Name    string
	Columns []ColumnSpec
}

// ColumnSpec descreve uma coluna declarada no CREATE TABLE.
type ColumnSpec struct {
	Name       string
	Type       types.DataType
	PrimaryKey bool

	// Nullable nil = não declarado (resolvido pela camada de schema:
	// primary key vira NOT NULL, o resto vira NULL)
	Nullable *bool

	// HasDefault distingue "DEFAULT NULL" de "sem default"
	HasDefault bool
	Default    any
}

// Insert: INSERT INTO tabela [(colunas)] VALUES (...), (...)
type Insert struct {
	Table   string
	Columns []string
	Rows    [][]any
}

// Select: SELECT * FROM tabela
type Select struct {
	Table string
}

// Begin / Commit / Rollback controlam a transação explícita da sessão.
type Begin struct{}
type Commit struct{}
type Rollback struct{}

func (CreateTable) stmt() {}
func (Insert) stmt()      {}
func (Select) stmt()      {}
func (Begin) stmt()       {}
func (Commit) stmt()      {}
func (Rollback) stmt()    {}
