package kv

import (
	"bytes"

	"github.com/google/btree"
)

func compareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}

// MemoryEngine guarda todos os pares em uma btree em memória.
// Útil para testes e para sessões descartáveis; a API é idêntica à do
// engine em disco.
type MemoryEngine struct {
	tree *btree.BTreeG[Entry]
}

// NewMemoryEngine cria um engine vazio.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		tree: btree.NewG[Entry](32, func(a, b Entry) bool {
			return bytes.Compare(a.Key, b.Key) < 0
		}),
	}
}

func (m *MemoryEngine) Set(key, value []byte) error {
	m.tree.ReplaceOrInsert(Entry{
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
	})
	return nil
}

func (m *MemoryEngine) Get(key []byte) ([]byte, bool, error) {
	item, ok := m.tree.Get(Entry{Key: key})
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), item.Value...), true, nil
}

func (m *MemoryEngine) Delete(key []byte) error {
	m.tree.Delete(Entry{Key: key})
	return nil
}

func (m *MemoryEngine) Scan(r Range) Iterator {
	var entries []Entry

	collect := func(item Entry) bool {
		if r.To != nil {
			c := bytes.Compare(item.Key, r.To)
			if c > 0 || (c == 0 && !r.ToIncluded) {
				return false
			}
		}
		if r.From != nil && r.FromExcluded && bytes.Equal(item.Key, r.From) {
			return true
		}
		entries = append(entries, item)
		return true
	}

	if r.From != nil {
		m.tree.AscendGreaterOrEqual(Entry{Key: r.From}, collect)
	} else {
		m.tree.Ascend(collect)
	}

	return &sliceIterator{entries: entries}
}

func (m *MemoryEngine) ScanPrefix(prefix []byte) Iterator {
	return m.Scan(PrefixRange(prefix))
}

func (m *MemoryEngine) Close() error {
	return nil
}

// sliceIterator serve entradas já materializadas, pelas duas pontas.
type sliceIterator struct {
	entries []Entry
}

func (it *sliceIterator) Next() (Entry, bool) {
	if len(it.entries) == 0 {
		return Entry{}, false
	}
	e := it.entries[0]
	it.entries = it.entries[1:]
	return e, true
}

func (it *sliceIterator) Back() (Entry, bool) {
	if len(it.entries) == 0 {
		return Entry{}, false
	}
	e := it.entries[len(it.entries)-1]
	it.entries = it.entries[:len(it.entries)-1]
	return e, true
}

func (it *sliceIterator) Err() error {
	return nil
}
