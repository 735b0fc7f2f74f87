package logdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/btree"

	"github.com/bobboyms/kvsql/pkg/errors"
)

const (
	// logHeaderSize é o tamanho fixo do header de cada registro:
	// key_len (u32 BE) + val_len (i32 BE)
	logHeaderSize = 8

	// tombstoneLen marca um registro de remoção (val_len = -1)
	tombstoneLen = int32(-1)

	// maxEntryLen limita chave e valor individualmente.
	// Proteção contra interpretar lixo como tamanho durante o replay.
	maxEntryLen = 1 << 30 // 1GB
)

// keydirEntry aponta para o payload do valor dentro do log.
// ValueOffset referencia o primeiro byte do VALOR, não do registro.
type keydirEntry struct {
	key         []byte
	valueOffset int64
	valueLen    uint32
}

func newKeydir() *btree.BTreeG[keydirEntry] {
	return btree.NewG[keydirEntry](32, func(a, b keydirEntry) bool {
		return bytes.Compare(a.key, b.key) < 0
	})
}

// logFile encapsula o arquivo append-only e seu lock exclusivo.
//
// Formato de registro (bit-exato):
//
//	offset 0: key_len (u32, big-endian)
//	offset 4: val_len (i32, big-endian; -1 = tombstone)
//	offset 8: bytes da chave, depois bytes do valor (ausente se tombstone)
type logFile struct {
	path string
	file *os.File
}

// openLogFile abre (criando se preciso) o arquivo de log e adquire o lock.
// Diretórios pais são criados automaticamente.
func openLogFile(path string) (*logFile, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	return &logFile{path: path, file: f}, nil
}

// buildKeydir reconstrói o índice em memória fazendo replay do log inteiro.
// Last-writer-wins: registros posteriores sobrescrevem os anteriores e
// tombstones removem a chave.
//
// Um registro que ultrapasse o EOF é corrupção fatal; não há truncamento
// silencioso da cauda.
func (l *logFile) buildKeydir() (*btree.BTreeG[keydirEntry], error) {
	keydir := newKeydir()

	info, err := l.file.Stat()
	if err != nil {
		return nil, err
	}
	fileSize := info.Size()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	reader := bufio.NewReader(l.file)

	var offset int64
	header := make([]byte, logHeaderSize)

	for offset < fileSize {
		if _, err := io.ReadFull(reader, header); err != nil {
			return nil, &errors.CorruptRecordError{
				Path:   l.path,
				Offset: offset,
				Reason: "truncated record header",
			}
		}

		keyLen := binary.BigEndian.Uint32(header[0:4])
		valLen := int32(binary.BigEndian.Uint32(header[4:8]))

		if keyLen > maxEntryLen || valLen > maxEntryLen || valLen < tombstoneLen {
			return nil, &errors.CorruptRecordError{
				Path:   l.path,
				Offset: offset,
				Reason: fmt.Sprintf("implausible lengths key=%d val=%d", keyLen, valLen),
			}
		}

		key := make([]byte, keyLen)
		if _, err := io.ReadFull(reader, key); err != nil {
			return nil, &errors.CorruptRecordError{
				Path:   l.path,
				Offset: offset,
				Reason: "truncated key",
			}
		}

		if valLen == tombstoneLen {
			keydir.Delete(keydirEntry{key: key})
			offset += logHeaderSize + int64(keyLen)
			continue
		}

		if _, err := reader.Discard(int(valLen)); err != nil {
			return nil, &errors.CorruptRecordError{
				Path:   l.path,
				Offset: offset,
				Reason: "record extends past end of file",
			}
		}

		keydir.ReplaceOrInsert(keydirEntry{
			key:         key,
			valueOffset: offset + logHeaderSize + int64(keyLen),
			valueLen:    uint32(valLen),
		})
		offset += logHeaderSize + int64(keyLen) + int64(valLen)
	}

	return keydir, nil
}

// writeEntry anexa um registro no fim do log. value nil grava um tombstone.
// Retorna o offset do início do registro e o tamanho total gravado.
//
// O flush acontece antes do retorno; o chamador só atualiza o keydir
// depois de writeEntry ter sucesso.
func (l *logFile) writeEntry(key []byte, value []byte, isTombstone bool) (int64, uint32, error) {
	offset, err := l.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, 0, err
	}

	valLen := tombstoneLen
	if !isTombstone {
		valLen = int32(len(value))
	}
	total := uint32(logHeaderSize + len(key))
	if !isTombstone {
		total += uint32(len(value))
	}

	writer := bufio.NewWriterSize(l.file, int(total))

	var header [logHeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(key)))
	binary.BigEndian.PutUint32(header[4:8], uint32(valLen))

	if _, err := writer.Write(header[:]); err != nil {
		return 0, 0, err
	}
	if _, err := writer.Write(key); err != nil {
		return 0, 0, err
	}
	if !isTombstone {
		if _, err := writer.Write(value); err != nil {
			return 0, 0, err
		}
	}
	if err := writer.Flush(); err != nil {
		return 0, 0, err
	}

	return offset, total, nil
}

// readValue lê o payload de um valor pelo ponteiro do keydir.
func (l *logFile) readValue(offset int64, size uint32) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := l.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("reading value at offset %d: %w", offset, err)
	}
	return buf, nil
}

// sync força fsync do arquivo físico.
func (l *logFile) sync() error {
	return l.file.Sync()
}

// close solta o lock e fecha o descritor.
func (l *logFile) close() error {
	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
