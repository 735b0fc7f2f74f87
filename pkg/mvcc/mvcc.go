// Package mvcc implementa snapshot isolation multi-versão sobre qualquer
// kv.Engine.
//
// Cada escrita lógica vira uma escrita física versionada; cada leitura
// filtra as versões físicas pelo snapshot da transação. Três famílias de
// metadados vivem no mesmo keyspace que os dados: o contador NextVersion,
// o conjunto TxnActive e os write-sets TxnWrite por transação.
package mvcc

import (
	"math"
	"sort"
	"sync"

	"github.com/bobboyms/kvsql/pkg/errors"
	"github.com/bobboyms/kvsql/pkg/kv"
)

// Mvcc envolve um engine compartilhado atrás de um mutex e abre
// transações sobre ele.
//
// O valor é barato de copiar: todas as cópias compartilham o mesmo engine
// e o mesmo mutex. Não replique o engine nem o contador de versões.
type Mvcc struct {
	shared *sharedEngine
}

type sharedEngine struct {
	mu  sync.Mutex
	eng kv.Engine
}

// New cria a camada MVCC sobre eng. O engine passa a pertencer ao Mvcc;
// não o use diretamente depois.
func New(eng kv.Engine) *Mvcc {
	return &Mvcc{shared: &sharedEngine{eng: eng}}
}

// Begin abre uma transação: aloca a próxima versão, fotografa o conjunto
// de transações ativas e registra a própria entrada TxnActive.
func (m *Mvcc) Begin() (*Transaction, error) {
	s := m.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Aloca a versão desta transação
	next := Version(1)
	if raw, found, err := s.eng.Get(encodeNextVersion()); err != nil {
		return nil, err
	} else if found {
		v, err := decodeVersion(raw)
		if err != nil {
			return nil, err
		}
		next = v
	}
	if err := s.eng.Set(encodeNextVersion(), encodeVersion(next+1)); err != nil {
		return nil, err
	}

	// 2. Snapshot do conjunto ativo (não inclui a própria versão)
	active, err := scanActive(s.eng)
	if err != nil {
		return nil, err
	}

	// 3. Registra a própria transação como ativa
	if err := s.eng.Set(encodeTxnActive(next), []byte{}); err != nil {
		return nil, err
	}

	return &Transaction{
		shared: s,
		state: TransactionState{
			Version: next,
			Active:  active,
		},
	}, nil
}

// Recover varre as entradas TxnActive deixadas por transações que estavam
// em voo num crash e faz rollback de cada uma, removendo suas versões e
// write-sets. Retorna quantas transações órfãs foram desfeitas.
//
// Chame antes de abrir transações; transações em andamento neste processo
// seriam desfeitas também.
func (m *Mvcc) Recover() (int, error) {
	s := m.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	orphans, err := scanActive(s.eng)
	if err != nil {
		return 0, err
	}

	for version := range orphans {
		if err := rollbackVersion(s.eng, version); err != nil {
			return 0, err
		}
	}
	return len(orphans), nil
}

// Compactor é o que o Mvcc exige de um engine para suportar compactação
// offline. logdb.DiskEngine implementa; engines em memória não.
type Compactor interface {
	Compact() error
}

// Compact compacta o engine subjacente segurando o mutex durante toda a
// reescrita: todas as transações param até terminar. Engines sem suporte
// são um no-op.
func (m *Mvcc) Compact() error {
	s := m.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.eng.(Compactor); ok {
		return c.Compact()
	}
	return nil
}

// Close fecha o engine subjacente.
func (m *Mvcc) Close() error {
	s := m.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Close()
}

// TransactionState é o estado em memória de uma transação.
type TransactionState struct {
	// Version atribuída a esta transação.
	Version Version

	// Active é o snapshot: as versões que estavam rodando no begin.
	// Não inclui a própria versão.
	Active map[Version]struct{}
}

// IsVisible decide se a versão v pertence ao snapshot:
// v é visível sse v não estava ativa no begin e v <= Version.
// Consequência: a transação enxerga as próprias escritas.
func (st *TransactionState) IsVisible(v Version) bool {
	if _, ok := st.Active[v]; ok {
		return false
	}
	return v <= st.Version
}

// Transaction é um handle de transação snapshot-isolated.
//
// Estados terminais (commit/rollback) são absorventes: operações
// posteriores retornam ErrTxnClosed.
type Transaction struct {
	shared *sharedEngine
	state  TransactionState
	done   bool
}

// State expõe o estado da transação (versão e snapshot).
func (t *Transaction) State() TransactionState {
	return t.state
}

// Set grava value sob key nesta versão.
func (t *Transaction) Set(key, value []byte) error {
	return t.writeInner(key, value, false)
}

// Delete grava um tombstone lógico para key nesta versão.
func (t *Transaction) Delete(key []byte) error {
	return t.writeInner(key, nil, true)
}

// writeInner faz a checagem de conflito e grava TxnWrite + Version.
//
// Conflito: examina a MAIOR versão física existente para key no intervalo
// [min(ativas ∪ {self+1}), max]. Se ela existe e não é visível, o snapshot
// do escritor seria incoerente — ErrWriteConflict. Versões invisíveis mais
// antigas estão necessariamente sobrescritas pela dominante, então olhar o
// máximo basta.
func (t *Transaction) writeInner(key, value []byte, tombstone bool) error {
	if t.done {
		return errors.ErrTxnClosed
	}
	s := t.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	from := t.state.Version + 1
	for v := range t.state.Active {
		if v < from {
			from = v
		}
	}

	iter := s.eng.Scan(kv.Range{
		From:       encodeVersionKey(key, from),
		To:         encodeVersionKey(key, Version(math.MaxUint64)),
		ToIncluded: true,
	})
	if entry, ok := iter.Back(); ok {
		dk, err := decodeKey(entry.Key)
		if err != nil {
			return err
		}
		if dk.tag != tagVersion {
			return errors.Internalf("mvcc: unexpected key in version range: %x", entry.Key)
		}
		if !t.state.IsVisible(dk.version) {
			return errors.ErrWriteConflict
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	// Registra a chave no write-set (usado por rollback e commit)
	if err := s.eng.Set(encodeTxnWrite(t.state.Version, key), []byte{}); err != nil {
		return err
	}

	payload, err := encodeValue(value, tombstone)
	if err != nil {
		return err
	}
	return s.eng.Set(encodeVersionKey(key, t.state.Version), payload)
}

// Get retorna o valor visível mais recente de key dentro do snapshot.
func (t *Transaction) Get(key []byte) ([]byte, bool, error) {
	if t.done {
		return nil, false, errors.ErrTxnClosed
	}
	s := t.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	// Varre Version(key, 0) ..= Version(key, self) de trás pra frente e
	// para na primeira versão visível.
	iter := s.eng.Scan(kv.Range{
		From:       encodeVersionKey(key, 0),
		To:         encodeVersionKey(key, t.state.Version),
		ToIncluded: true,
	})
	for {
		entry, ok := iter.Back()
		if !ok {
			break
		}
		dk, err := decodeKey(entry.Key)
		if err != nil {
			return nil, false, err
		}
		if dk.tag != tagVersion {
			return nil, false, errors.Internalf("mvcc: unexpected key in version range: %x", entry.Key)
		}
		if !t.state.IsVisible(dk.version) {
			continue
		}
		data, tombstone, err := decodeValue(entry.Value)
		if err != nil {
			return nil, false, err
		}
		if tombstone {
			return nil, false, nil
		}
		return data, true, nil
	}
	return nil, false, iter.Err()
}

// ScanPrefix retorna, em ordem de chave, a versão visível mais recente de
// cada chave crua que começa com prefix. Entradas deletadas são omitidas.
//
// Os resultados são copiados para fora antes de soltar o mutex; o chamador
// nunca segura um empréstimo do engine.
func (t *Transaction) ScanPrefix(prefix []byte) ([]kv.Entry, error) {
	if t.done {
		return nil, errors.ErrTxnClosed
	}
	s := t.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	// Version(prefix) sem os 2 bytes do terminador casa com toda
	// Version(k, v) onde k começa com prefix — e com nenhuma outra.
	encPrefix := prefixVersionKey(prefix)
	encPrefix = encPrefix[:len(encPrefix)-2]

	results := map[string][]byte{}
	iter := s.eng.ScanPrefix(encPrefix)
	for {
		entry, ok := iter.Next()
		if !ok {
			break
		}
		dk, err := decodeKey(entry.Key)
		if err != nil {
			return nil, err
		}
		if dk.tag != tagVersion {
			return nil, errors.Internalf("mvcc: unexpected key in prefix scan: %x", entry.Key)
		}
		if !t.state.IsVisible(dk.version) {
			continue
		}
		data, tombstone, err := decodeValue(entry.Value)
		if err != nil {
			return nil, err
		}
		if tombstone {
			delete(results, string(dk.raw))
		} else {
			results[string(dk.raw)] = data
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kv.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, kv.Entry{Key: []byte(k), Value: results[k]})
	}
	return out, nil
}

// Commit remove o write-set e a entrada TxnActive; as versões gravadas
// ficam e se tornam visíveis para transações futuras.
func (t *Transaction) Commit() error {
	if t.done {
		return errors.ErrTxnClosed
	}
	s := t.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	writes, err := collectKeys(s.eng, prefixTxnWrite(t.state.Version))
	if err != nil {
		return err
	}
	for _, key := range writes {
		if err := s.eng.Delete(key); err != nil {
			return err
		}
	}
	if err := s.eng.Delete(encodeTxnActive(t.state.Version)); err != nil {
		return err
	}

	t.done = true
	return nil
}

// Rollback desfaz a transação: além do write-set e da entrada TxnActive,
// remove as próprias versões gravadas.
func (t *Transaction) Rollback() error {
	if t.done {
		return errors.ErrTxnClosed
	}
	s := t.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := rollbackVersion(s.eng, t.state.Version); err != nil {
		return err
	}
	t.done = true
	return nil
}

// rollbackVersion apaga tudo que a versão v escreveu: Version(k, v) para
// cada chave no write-set, o write-set em si e a entrada TxnActive.
func rollbackVersion(eng kv.Engine, v Version) error {
	writes, err := collectKeys(eng, prefixTxnWrite(v))
	if err != nil {
		return err
	}

	var deleteKeys [][]byte
	for _, key := range writes {
		dk, err := decodeKey(key)
		if err != nil {
			return err
		}
		if dk.tag != tagTxnWrite {
			return errors.Internalf("mvcc: unexpected key in write set: %x", key)
		}
		deleteKeys = append(deleteKeys, encodeVersionKey(dk.raw, v))
		deleteKeys = append(deleteKeys, key)
	}

	for _, key := range deleteKeys {
		if err := eng.Delete(key); err != nil {
			return err
		}
	}
	return eng.Delete(encodeTxnActive(v))
}

// scanActive coleta o conjunto de versões com entrada TxnActive.
func scanActive(eng kv.Engine) (map[Version]struct{}, error) {
	active := make(map[Version]struct{})

	iter := eng.ScanPrefix(prefixTxnActive())
	for {
		entry, ok := iter.Next()
		if !ok {
			break
		}
		dk, err := decodeKey(entry.Key)
		if err != nil {
			return nil, err
		}
		if dk.tag != tagTxnActive {
			return nil, errors.Internalf("mvcc: unexpected key in active set: %x", entry.Key)
		}
		active[dk.version] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return active, nil
}

// collectKeys materializa as chaves de um prefix scan antes de qualquer
// mutação (iteradores tomam o engine emprestado).
func collectKeys(eng kv.Engine, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	iter := eng.ScanPrefix(prefix)
	for {
		entry, ok := iter.Next()
		if !ok {
			break
		}
		keys = append(keys, entry.Key)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
