package sql

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Engine é a camada abstrata que a sessão SQL consome.
// Hoje a única implementação é KVEngine (MVCC sobre kv.Engine).
type Engine interface {
	Begin() (Transaction, error)
	Close() error
}

// Transaction reúne as operações DDL e DML que os executores usam.
type Transaction interface {
	Commit() error
	Rollback() error

	CreateRow(table string, row []any) error
	ScanTable(table string) ([]bson.D, error)

	CreateTable(table Table) error
	GetTable(name string) (Table, bool, error)
	MustGetTable(name string) (Table, error)
}
