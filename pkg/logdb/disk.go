package logdb

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/bobboyms/kvsql/pkg/kv"
)

// DiskEngine é um engine chave/valor log-structured: um arquivo append-only
// mais um índice em memória (keydir) apontando cada chave viva para o
// payload do seu valor dentro do log.
//
// O engine não é thread-safe por si só; a camada MVCC o envolve em um mutex.
type DiskEngine struct {
	log    *logFile
	keydir *btree.BTreeG[keydirEntry]
	opts   Options

	// syncMu protege o ponteiro do log contra o sync em background
	// durante a troca de arquivo da compactação
	syncMu sync.Mutex

	// Controle do sync em background (SyncInterval)
	ticker *time.Ticker
	done   chan struct{}
	closed bool
}

var _ kv.Engine = (*DiskEngine)(nil)

// Open abre (criando se preciso) o log em path, adquire o lock exclusivo
// e reconstrói o keydir via replay.
func Open(path string, opts Options) (*DiskEngine, error) {
	log, err := openLogFile(path)
	if err != nil {
		return nil, err
	}

	keydir, err := log.buildKeydir()
	if err != nil {
		log.close()
		return nil, err
	}

	e := &DiskEngine{
		log:    log,
		keydir: keydir,
		opts:   opts,
	}

	if opts.SyncPolicy == SyncInterval {
		e.ticker = time.NewTicker(opts.SyncIntervalDuration)
		e.done = make(chan struct{})
		go e.backgroundSync()
	}

	return e, nil
}

// OpenCompacted abre o engine e compacta o log imediatamente.
func OpenCompacted(path string, opts Options) (*DiskEngine, error) {
	e, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	if err := e.Compact(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *DiskEngine) backgroundSync() {
	for {
		select {
		case <-e.ticker.C:
			e.syncMu.Lock()
			e.log.sync()
			e.syncMu.Unlock()
		case <-e.done:
			return
		}
	}
}

// Set anexa um registro e atualiza o keydir.
// O keydir só é mutado depois do flush ter sucesso.
func (e *DiskEngine) Set(key, value []byte) error {
	offset, total, err := e.log.writeEntry(key, value, false)
	if err != nil {
		return err
	}
	if err := e.maybeSync(); err != nil {
		return err
	}

	e.keydir.ReplaceOrInsert(keydirEntry{
		key:         append([]byte(nil), key...),
		valueOffset: offset + int64(total) - int64(len(value)),
		valueLen:    uint32(len(value)),
	})
	return nil
}

// Get resolve o valor atual de key pelo keydir.
func (e *DiskEngine) Get(key []byte) ([]byte, bool, error) {
	entry, ok := e.keydir.Get(keydirEntry{key: key})
	if !ok {
		return nil, false, nil
	}
	value, err := e.log.readValue(entry.valueOffset, entry.valueLen)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete anexa um tombstone e remove a chave do keydir.
func (e *DiskEngine) Delete(key []byte) error {
	if _, _, err := e.log.writeEntry(key, nil, true); err != nil {
		return err
	}
	if err := e.maybeSync(); err != nil {
		return err
	}
	e.keydir.Delete(keydirEntry{key: key})
	return nil
}

// Scan retorna um iterador duplamente terminado sobre o intervalo r.
// As entradas do keydir são capturadas na criação; os valores são lidos
// do log um a um, a cada Next/Back.
func (e *DiskEngine) Scan(r kv.Range) kv.Iterator {
	var entries []keydirEntry

	collect := func(item keydirEntry) bool {
		if r.To != nil {
			c := bytes.Compare(item.key, r.To)
			if c > 0 || (c == 0 && !r.ToIncluded) {
				return false
			}
		}
		if r.From != nil && r.FromExcluded && bytes.Equal(item.key, r.From) {
			return true
		}
		entries = append(entries, item)
		return true
	}

	if r.From != nil {
		e.keydir.AscendGreaterOrEqual(keydirEntry{key: r.From}, collect)
	} else {
		e.keydir.Ascend(collect)
	}

	return &diskIterator{log: e.log, entries: entries}
}

// ScanPrefix itera as chaves que começam com prefix.
func (e *DiskEngine) ScanPrefix(prefix []byte) kv.Iterator {
	return e.Scan(kv.PrefixRange(prefix))
}

// Compact reescreve o log contendo exatamente as entradas vivas, em ordem
// de chave, e troca o arquivo antigo pelo novo com rename atômico.
//
// Não é seguro com escritores concorrentes: é uma chamada de manutenção
// explícita (a camada MVCC segura o mutex durante toda a compactação).
func (e *DiskEngine) Compact() error {
	scratch := fmt.Sprintf("%s.compact-%s", e.log.path, uuid.NewString())

	newLog, err := openLogFile(scratch)
	if err != nil {
		return err
	}
	newKeydir := newKeydir()

	var iterErr error
	e.keydir.Ascend(func(entry keydirEntry) bool {
		value, err := e.log.readValue(entry.valueOffset, entry.valueLen)
		if err != nil {
			iterErr = err
			return false
		}
		offset, total, err := newLog.writeEntry(entry.key, value, false)
		if err != nil {
			iterErr = err
			return false
		}
		newKeydir.ReplaceOrInsert(keydirEntry{
			key:         entry.key,
			valueOffset: offset + int64(total) - int64(entry.valueLen),
			valueLen:    entry.valueLen,
		})
		return true
	})
	if iterErr != nil {
		newLog.close()
		return iterErr
	}

	if err := newLog.sync(); err != nil {
		newLog.close()
		return err
	}

	// Troca o scratch pelo arquivo oficial. O descritor do novo log continua
	// válido depois do rename (aponta para o inode, não para o caminho).
	if err := atomic.ReplaceFile(scratch, e.log.path); err != nil {
		newLog.close()
		return err
	}

	e.syncMu.Lock()
	oldPath := e.log.path
	e.log.close()

	newLog.path = oldPath
	e.log = newLog
	e.keydir = newKeydir
	e.syncMu.Unlock()
	return nil
}

func (e *DiskEngine) maybeSync() error {
	if e.opts.SyncPolicy == SyncEveryWrite {
		return e.log.sync()
	}
	return nil
}

// Close para o sync em background, solta o lock e fecha o arquivo.
func (e *DiskEngine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	if e.ticker != nil {
		e.ticker.Stop()
		close(e.done)
	}

	if err := e.log.sync(); err != nil {
		e.log.close()
		return err
	}
	return e.log.close()
}

// diskIterator percorre entradas capturadas do keydir, resolvendo cada
// valor do log de forma preguiçosa. O engine não pode ser mutado enquanto
// o iterador estiver vivo.
type diskIterator struct {
	log     *logFile
	entries []keydirEntry
	err     error
}

func (it *diskIterator) Next() (kv.Entry, bool) {
	if it.err != nil || len(it.entries) == 0 {
		return kv.Entry{}, false
	}
	entry := it.entries[0]
	it.entries = it.entries[1:]
	return it.resolve(entry)
}

func (it *diskIterator) Back() (kv.Entry, bool) {
	if it.err != nil || len(it.entries) == 0 {
		return kv.Entry{}, false
	}
	entry := it.entries[len(it.entries)-1]
	it.entries = it.entries[:len(it.entries)-1]
	return it.resolve(entry)
}

func (it *diskIterator) resolve(entry keydirEntry) (kv.Entry, bool) {
	value, err := it.log.readValue(entry.valueOffset, entry.valueLen)
	if err != nil {
		it.err = err
		return kv.Entry{}, false
	}
	return kv.Entry{Key: entry.key, Value: value}, true
}

func (it *diskIterator) Err() error {
	return it.err
}
