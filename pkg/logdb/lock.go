package logdb

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/bobboyms/kvsql/pkg/errors"
)

// lockFile adquire um lock exclusivo (advisory) no arquivo de log.
// Garante que um único processo use o arquivo por vez; o lock vive
// enquanto o descritor estiver aberto.
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK || err == unix.EAGAIN {
		return errors.ErrDatabaseLocked
	}
	return err
}

// unlockFile solta o lock explicitamente. Fechar o descritor também solta.
func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
