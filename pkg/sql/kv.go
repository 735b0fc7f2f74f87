package sql

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/kvsql/pkg/errors"
	"github.com/bobboyms/kvsql/pkg/keycode"
	"github.com/bobboyms/kvsql/pkg/kv"
	"github.com/bobboyms/kvsql/pkg/mvcc"
	"github.com/bobboyms/kvsql/pkg/types"
)

// Keyspace da camada SQL dentro do keyspace de usuário do MVCC:
//
//	Table(name)      0x01 | name escapado+terminado
//	Row(table, pk)   0x02 | table escapado+terminado | pk codificado
//
// O prefixo Row(table) inclui o terminador do nome, então um prefix scan
// sobre ele casa exatamente com as linhas daquela tabela.
const (
	sqlTagTable byte = 0x01
	sqlTagRow   byte = 0x02
)

func tableKey(name string) []byte {
	return keycode.AppendBytes([]byte{sqlTagTable}, []byte(name))
}

func rowKey(table string, pk types.Comparable) ([]byte, error) {
	dst := keycode.AppendBytes([]byte{sqlTagRow}, []byte(table))
	return types.EncodeKey(dst, pk)
}

func rowPrefix(table string) []byte {
	return keycode.AppendBytes([]byte{sqlTagRow}, []byte(table))
}

// KVEngine implementa Engine sobre a pilha MVCC + kv.Engine.
type KVEngine struct {
	kv *mvcc.Mvcc
}

var _ Engine = (*KVEngine)(nil)

// NewKVEngine monta a pilha sobre eng e recupera transações órfãs de um
// crash anterior antes de aceitar trabalho.
func NewKVEngine(eng kv.Engine) (*KVEngine, error) {
	m := mvcc.New(eng)
	if _, err := m.Recover(); err != nil {
		return nil, err
	}
	return &KVEngine{kv: m}, nil
}

func (e *KVEngine) Begin() (Transaction, error) {
	txn, err := e.kv.Begin()
	if err != nil {
		return nil, err
	}
	return &KVTransaction{txn: txn}, nil
}

// Compact compacta o engine subjacente (chamada de manutenção).
func (e *KVEngine) Compact() error {
	return e.kv.Compact()
}

// Close fecha a pilha inteira.
func (e *KVEngine) Close() error {
	return e.kv.Close()
}

// KVTransaction traduz as operações relacionais para o keyspace MVCC.
type KVTransaction struct {
	txn *mvcc.Transaction
}

var _ Transaction = (*KVTransaction)(nil)

func (t *KVTransaction) Commit() error {
	return t.txn.Commit()
}

func (t *KVTransaction) Rollback() error {
	return t.txn.Rollback()
}

// CreateTable persiste o schema sob Table(name).
func (t *KVTransaction) CreateTable(table Table) error {
	if _, found, err := t.GetTable(table.Name); err != nil {
		return err
	} else if found {
		return &errors.TableAlreadyExistsError{Name: table.Name}
	}
	if err := table.Validate(); err != nil {
		return err
	}

	value, err := bson.Marshal(table)
	if err != nil {
		return fmt.Errorf("encoding table schema: %w", err)
	}
	return t.txn.Set(tableKey(table.Name), value)
}

// GetTable carrega o schema de uma tabela.
func (t *KVTransaction) GetTable(name string) (Table, bool, error) {
	raw, found, err := t.txn.Get(tableKey(name))
	if err != nil || !found {
		return Table{}, false, err
	}
	var table Table
	if err := bson.Unmarshal(raw, &table); err != nil {
		return Table{}, false, fmt.Errorf("decoding table schema: %w", err)
	}
	return table, true, nil
}

// MustGetTable é GetTable com erro quando a tabela não existe.
func (t *KVTransaction) MustGetTable(name string) (Table, error) {
	table, found, err := t.GetTable(name)
	if err != nil {
		return Table{}, err
	}
	if !found {
		return Table{}, &errors.TableNotFoundError{Name: name}
	}
	return table, nil
}

// CreateRow valida e persiste uma linha alinhada às colunas da tabela.
func (t *KVTransaction) CreateRow(tableName string, row []any) error {
	table, err := t.MustGetTable(tableName)
	if err != nil {
		return err
	}
	if len(row) != len(table.Columns) {
		return errors.Internalf("row has %d values, table %q has %d columns",
			len(row), tableName, len(table.Columns))
	}

	doc := bson.D{}
	for i, col := range table.Columns {
		val := normalizeValue(col, row[i])
		if val == nil {
			if !col.Nullable {
				return errors.Internalf("column %q cannot be null", col.Name)
			}
		} else if err := checkValueType(col, val); err != nil {
			return err
		}
		doc = append(doc, bson.E{Key: col.Name, Value: val})
		row[i] = val
	}

	pkCol, pkIdx := table.PrimaryKey()
	if row[pkIdx] == nil {
		return errors.Internalf("primary key %q cannot be null", pkCol.Name)
	}
	pk, err := types.FromLiteral(row[pkIdx])
	if err != nil {
		return err
	}

	key, err := rowKey(tableName, pk)
	if err != nil {
		return err
	}

	value, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding row: %w", err)
	}
	return t.txn.Set(key, value)
}

// ScanTable retorna todas as linhas visíveis da tabela, em ordem de
// chave primária.
func (t *KVTransaction) ScanTable(tableName string) ([]bson.D, error) {
	if _, err := t.MustGetTable(tableName); err != nil {
		return nil, err
	}

	entries, err := t.txn.ScanPrefix(rowPrefix(tableName))
	if err != nil {
		return nil, err
	}

	rows := make([]bson.D, 0, len(entries))
	for _, entry := range entries {
		var doc bson.D
		if err := bson.Unmarshal(entry.Value, &doc); err != nil {
			return nil, fmt.Errorf("decoding row: %w", err)
		}
		rows = append(rows, doc)
	}
	return rows, nil
}
