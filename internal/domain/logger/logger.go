package logger

import (
	"log/slog"
	"time"
)

// SlowTxThreshold is the duration above which a committed transaction is
// reported at warn level.
const SlowTxThreshold = 500 * time.Millisecond

// TxLogger times one slot store transaction.
type TxLogger struct {
	Store     string
	StartTime time.Time
}

func StartTx(store string) *TxLogger {
	return &TxLogger{
		Store:     store,
		StartTime: time.Now(),
	}
}

func (l *TxLogger) Commit(writes int) {
	took := time.Since(l.StartTime)
	attrs := []any{
		slog.String("type", "db"),
		slog.String("store", l.Store),
		slog.Int("writes", writes),
		slog.Duration("took", took),
	}
	if took > SlowTxThreshold {
		slog.Warn("Slow transaction", attrs...)
		return
	}
	slog.Debug("Transaction committed", attrs...)
}

// Abort logs a rolled back transaction. Rollbacks caused by the slot rules
// themselves are expected and only logged at debug level.
func (l *TxLogger) Abort(err error, expected bool) {
	attrs := []any{
		slog.String("type", "db"),
		slog.String("store", l.Store),
		slog.Duration("took", time.Since(l.StartTime)),
		slog.Any("error", err),
	}
	if expected {
		slog.Debug("Transaction rolled back", attrs...)
		return
	}
	slog.Error("Transaction failed", attrs...)
}
