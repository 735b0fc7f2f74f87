package logdb

import "time"

// SyncPolicy define a estratégia de durabilidade do log.
//
// Toda escrita sempre passa por flush do buffer para o SO; a política
// controla apenas quando o fsync() acontece.
type SyncPolicy int

const (
	// SyncNone nunca chama fsync(). Durabilidade fica por conta do SO.
	SyncNone SyncPolicy = iota

	// SyncEveryWrite chama fsync() após cada escrita.
	// Mais seguro, menor performance.
	SyncEveryWrite

	// SyncInterval chama fsync() periodicamente (background).
	// Balanceado.
	SyncInterval
)

// Options configura o engine de disco
type Options struct {
	// Política de Sync
	SyncPolicy SyncPolicy

	// Intervalo para SyncInterval
	SyncIntervalDuration time.Duration
}

// DefaultOptions retorna uma configuração segura
func DefaultOptions() Options {
	return Options{
		SyncPolicy:           SyncNone,
		SyncIntervalDuration: 200 * time.Millisecond,
	}
}
