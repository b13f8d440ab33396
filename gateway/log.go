package main

import (
	"fmt"
	"os"
	"sync"
)

// TransactionLog is the gateway's sole durable state: an append-only
// file of PREPARE/COMMIT/ABORT records. The gateway only appends to it;
// nothing reads it back on startup, so a restarted gateway begins again
// at order id 1 with an empty order table.
type TransactionLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenTransactionLog opens (creating if necessary) the log file at
// path, ready to append.
func OpenTransactionLog(path string) (*TransactionLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("gateway: open log file %s: %w", path, err)
	}
	return &TransactionLog{file: f}, nil
}

// Append writes one record of the form "<op>,<orderID>,<details>" and
// flushes it, so a crash right after this call never loses the record.
func (l *TransactionLog) Append(op string, orderID uint32, details string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s,%d,%s\n", op, orderID, details)
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("gateway: write log: %w", err)
	}
	return l.file.Sync()
}

// Close closes the underlying file.
func (l *TransactionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
