package mvcc_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	kverrors "github.com/bobboyms/kvsql/pkg/errors"
	"github.com/bobboyms/kvsql/pkg/kv"
	"github.com/bobboyms/kvsql/pkg/logdb"
	"github.com/bobboyms/kvsql/pkg/mvcc"
)

func newMvcc(t *testing.T) *mvcc.Mvcc {
	t.Helper()
	return mvcc.New(kv.NewMemoryEngine())
}

func begin(t *testing.T, m *mvcc.Mvcc) *mvcc.Transaction {
	t.Helper()
	txn, err := m.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	return txn
}

func mustSet(t *testing.T, txn *mvcc.Transaction, key, value string) {
	t.Helper()
	if err := txn.Set([]byte(key), []byte(value)); err != nil {
		t.Fatalf("Set %q failed: %v", key, err)
	}
}

func mustGet(t *testing.T, txn *mvcc.Transaction, key string) (string, bool) {
	t.Helper()
	val, found, err := txn.Get([]byte(key))
	if err != nil {
		t.Fatalf("Get %q failed: %v", key, err)
	}
	return string(val), found
}

func mustCommit(t *testing.T, txn *mvcc.Transaction) {
	t.Helper()
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

// TestMVCC_SnapshotIsolation é o cenário S4: cada transação enxerga um
// prefixo fixo da história commitada, definido no begin.
func TestMVCC_SnapshotIsolation(t *testing.T) {
	m := newMvcc(t)

	// 1. T1 grava "a" e commita
	t1 := begin(t, m)
	mustSet(t, t1, "k", "a")
	mustCommit(t, t1)

	// 2. T2 começa e vê "a"
	t2 := begin(t, m)
	if val, found := mustGet(t, t2, "k"); !found || val != "a" {
		t.Fatalf("T2 expected a, got %q (found=%v)", val, found)
	}

	// 3. T3 sobrescreve com "b" (ainda não commitado)
	t3 := begin(t, m)
	mustSet(t, t3, "k", "b")

	// 4. T2 continua vendo "a"
	if val, _ := mustGet(t, t2, "k"); val != "a" {
		t.Errorf("T2 should still see a, got %q", val)
	}

	// 5. T3 commita; o snapshot de T2 não muda
	mustCommit(t, t3)
	if val, _ := mustGet(t, t2, "k"); val != "a" {
		t.Errorf("T2 snapshot changed after T3 commit: got %q", val)
	}

	// 6. T4 começa depois do commit de T3 e vê "b"
	t4 := begin(t, m)
	if val, found := mustGet(t, t4, "k"); !found || val != "b" {
		t.Errorf("T4 expected b, got %q (found=%v)", val, found)
	}
}

// TestMVCC_ReadYourWrites: dentro da mesma transação, get vê o set anterior
// e delete esconde a chave.
func TestMVCC_ReadYourWrites(t *testing.T) {
	m := newMvcc(t)

	txn := begin(t, m)
	mustSet(t, txn, "k", "v")
	if val, found := mustGet(t, txn, "k"); !found || val != "v" {
		t.Fatalf("expected own write visible, got %q (found=%v)", val, found)
	}

	if err := txn.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found := mustGet(t, txn, "k"); found {
		t.Error("own delete should hide the key")
	}
}

// TestMVCC_WriteConflict é o cenário S5: duas transações concorrentes
// escrevendo a mesma chave — no máximo uma vence.
func TestMVCC_WriteConflict(t *testing.T) {
	m := newMvcc(t)

	t1 := begin(t, m)
	t2 := begin(t, m)

	mustSet(t, t1, "k", "1")

	err := t2.Set([]byte("k"), []byte("2"))
	if !errors.Is(err, kverrors.ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}

	// A falha não deixa rastro: rollback de T2 e T1 segue normal
	if err := t2.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	mustCommit(t, t1)

	t3 := begin(t, m)
	if val, _ := mustGet(t, t3, "k"); val != "1" {
		t.Errorf("expected winner value 1, got %q", val)
	}
}

// TestMVCC_ConflictWithCommittedInvisible: versão commitada depois do begin
// também conflita.
func TestMVCC_ConflictWithCommittedInvisible(t *testing.T) {
	m := newMvcc(t)

	t1 := begin(t, m)

	// T2 começa depois, escreve e commita
	t2 := begin(t, m)
	mustSet(t, t2, "k", "2")
	mustCommit(t, t2)

	// T1 não enxerga a versão de T2 (começou antes), então escrever conflita
	err := t1.Set([]byte("k"), []byte("1"))
	if !errors.Is(err, kverrors.ErrWriteConflict) {
		t.Fatalf("expected ErrWriteConflict, got %v", err)
	}
}

// TestMVCC_RollbackErasure é o cenário S6: rollback não deixa versões nem
// write-set para trás.
func TestMVCC_RollbackErasure(t *testing.T) {
	eng := kv.NewMemoryEngine()
	m := mvcc.New(eng)

	t1 := begin(t, m)
	mustSet(t, t1, "k", "x")
	if err := t1.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	// 1. Leitores subsequentes não veem nada
	t2 := begin(t, m)
	if _, found := mustGet(t, t2, "k"); found {
		t.Error("rolled back write should not be visible")
	}
	mustCommit(t, t2)

	// 2. Operações no handle encerrado falham
	if err := t1.Set([]byte("k"), []byte("y")); !errors.Is(err, kverrors.ErrTxnClosed) {
		t.Errorf("expected ErrTxnClosed, got %v", err)
	}

	// 3. No engine resta só o contador NextVersion: nenhuma Version,
	// TxnWrite ou TxnActive de T1 (nem de T2, já commitada)
	iter := eng.Scan(kv.RangeAll())
	remaining := 0
	for {
		if _, ok := iter.Next(); !ok {
			break
		}
		remaining++
	}
	if remaining != 1 {
		t.Errorf("expected only the NextVersion key left, found %d keys", remaining)
	}
}

// TestMVCC_CommitDurability: escritas commitadas aparecem para transações
// iniciadas depois.
func TestMVCC_CommitDurability(t *testing.T) {
	m := newMvcc(t)

	t1 := begin(t, m)
	mustSet(t, t1, "a", "1")
	mustSet(t, t1, "b", "2")
	mustCommit(t, t1)

	t2 := begin(t, m)
	if val, found := mustGet(t, t2, "a"); !found || val != "1" {
		t.Errorf("a: got %q (found=%v)", val, found)
	}
	if val, found := mustGet(t, t2, "b"); !found || val != "2" {
		t.Errorf("b: got %q (found=%v)", val, found)
	}
}

// TestMVCC_DeleteVisibility: delete commitado esconde a chave de snapshots
// futuros mas não dos antigos.
func TestMVCC_DeleteVisibility(t *testing.T) {
	m := newMvcc(t)

	t1 := begin(t, m)
	mustSet(t, t1, "k", "v")
	mustCommit(t, t1)

	t2 := begin(t, m) // snapshot com "k" vivo

	t3 := begin(t, m)
	if err := t3.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	mustCommit(t, t3)

	if val, found := mustGet(t, t2, "k"); !found || val != "v" {
		t.Errorf("T2 should still see v, got %q (found=%v)", val, found)
	}

	t4 := begin(t, m)
	if _, found := mustGet(t, t4, "k"); found {
		t.Error("T4 should not see deleted key")
	}
}

// TestMVCC_ScanPrefix: merge de versões visíveis por chave, em ordem.
func TestMVCC_ScanPrefix(t *testing.T) {
	m := newMvcc(t)

	t1 := begin(t, m)
	mustSet(t, t1, "row/a", "1")
	mustSet(t, t1, "row/b", "2")
	mustSet(t, t1, "row/c", "3")
	mustSet(t, t1, "other", "x")
	mustCommit(t, t1)

	// Sobrescreve b, deleta c
	t2 := begin(t, m)
	mustSet(t, t2, "row/b", "2b")
	if err := t2.Delete([]byte("row/c")); err != nil {
		t.Fatal(err)
	}
	mustCommit(t, t2)

	t3 := begin(t, m)
	entries, err := t3.ScanPrefix([]byte("row/"))
	if err != nil {
		t.Fatalf("ScanPrefix failed: %v", err)
	}

	got := map[string]string{}
	var order []string
	for _, e := range entries {
		got[string(e.Key)] = string(e.Value)
		order = append(order, string(e.Key))
	}
	want := map[string]string{"row/a": "1", "row/b": "2b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scan result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"row/a", "row/b"}, order); diff != "" {
		t.Errorf("scan order mismatch (-want +got):\n%s", diff)
	}
}

// TestMVCC_ScanPrefixSkipsConcurrent: versões de transações ativas no begin
// não aparecem no scan.
func TestMVCC_ScanPrefixSkipsConcurrent(t *testing.T) {
	m := newMvcc(t)

	t1 := begin(t, m)
	mustSet(t, t1, "row/a", "uncommitted")

	t2 := begin(t, m)
	entries, err := t2.ScanPrefix([]byte("row/"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty scan, got %d entries", len(entries))
	}
}

// TestMVCC_Recover: entradas TxnActive órfãs são varridas e suas escritas
// desaparecem.
func TestMVCC_Recover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.log")

	// 1. Simula um crash: transação em voo, processo morre sem rollback
	eng, err := logdb.Open(path, logdb.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	m := mvcc.New(eng)

	committed := begin(t, m)
	mustSet(t, committed, "keep", "v")
	mustCommit(t, committed)

	orphan := begin(t, m)
	mustSet(t, orphan, "partial", "x")
	// sem commit nem rollback
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	// 2. Reabre e recupera
	eng, err = logdb.Open(path, logdb.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	m = mvcc.New(eng)
	defer m.Close()

	n, err := m.Recover()
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 orphan, got %d", n)
	}

	// 3. A escrita parcial sumiu; a commitada ficou
	txn := begin(t, m)
	if _, found := mustGet(t, txn, "partial"); found {
		t.Error("orphan write should be gone after Recover")
	}
	if val, found := mustGet(t, txn, "keep"); !found || val != "v" {
		t.Errorf("committed write lost: got %q (found=%v)", val, found)
	}
	mustCommit(t, txn)

	// 4. Sem transações em voo, Recover de novo é no-op
	if n, err := m.Recover(); err != nil || n != 0 {
		t.Errorf("second Recover: n=%d err=%v", n, err)
	}
}

// TestMVCC_PersistenceAcrossReopen: dados commitados sobrevivem ao reopen
// do engine de disco.
func TestMVCC_PersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.log")

	eng, err := logdb.Open(path, logdb.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	m := mvcc.New(eng)

	t1 := begin(t, m)
	mustSet(t, t1, "k", "v")
	mustCommit(t, t1)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	eng, err = logdb.Open(path, logdb.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	m = mvcc.New(eng)
	defer m.Close()

	t2 := begin(t, m)
	if val, found := mustGet(t, t2, "k"); !found || val != "v" {
		t.Errorf("expected v after reopen, got %q (found=%v)", val, found)
	}
}

// TestMVCC_Compact: compactar sob o mutex preserva o estado visível.
func TestMVCC_Compact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.log")

	eng, err := logdb.Open(path, logdb.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	m := mvcc.New(eng)
	defer m.Close()

	t1 := begin(t, m)
	mustSet(t, t1, "a", "1")
	mustSet(t, t1, "a", "2") // versão sobrescrita na mesma txn
	mustCommit(t, t1)

	if err := m.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	t2 := begin(t, m)
	if val, found := mustGet(t, t2, "a"); !found || val != "2" {
		t.Errorf("expected 2 after compact, got %q (found=%v)", val, found)
	}
}

// TestMVCC_VersionsSurviveCommit: commit limpa TxnWrite/TxnActive mas as
// versões ficam — transações antigas continuam lendo o passado.
func TestMVCC_VersionsSurviveCommit(t *testing.T) {
	m := newMvcc(t)

	t1 := begin(t, m)
	mustSet(t, t1, "k", "old")
	mustCommit(t, t1)

	reader := begin(t, m) // snapshot no "old"

	t2 := begin(t, m)
	mustSet(t, t2, "k", "new")
	mustCommit(t, t2)

	if val, _ := mustGet(t, reader, "k"); val != "old" {
		t.Errorf("old version should survive commit of new one, got %q", val)
	}
}

// TestMVCC_SetEmptyValue: valor vazio é Some(vazio), não tombstone.
func TestMVCC_SetEmptyValue(t *testing.T) {
	m := newMvcc(t)

	t1 := begin(t, m)
	if err := t1.Set([]byte("k"), []byte{}); err != nil {
		t.Fatal(err)
	}
	val, found, err := t1.Get([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("empty value should be found")
	}
	if len(val) != 0 {
		t.Errorf("expected empty value, got %v", val)
	}
}
