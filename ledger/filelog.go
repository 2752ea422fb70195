package ledger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"powchain/core"
	"powchain/logger"
)

// FileLog appends two lines per block to a plain text file: the digest input
// (previous hash, miner, nonce concatenated) and then the resulting hash.
// The log is write-only; nothing in the miner reads it back.
type FileLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// Open opens or creates the log for appending.
func Open(path string) (*FileLog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create block log directory %s: %v", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open block log %s: %w", path, err)
	}
	logger.Infof("Appending block records to %s", path)
	return &FileLog{path: path, file: f}, nil
}

func (l *FileLog) Path() string { return l.path }

// BlockMined implements core.BlockSink.
func (l *FileLog) BlockMined(_ context.Context, block *core.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("block log %s is closed", l.path)
	}
	if err := WriteRecord(l.file, block); err != nil {
		return fmt.Errorf("failed to append block %d to %s: %w", block.Number, l.path, err)
	}
	return l.file.Sync()
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// WriteRecord writes one record: digest input line, then hash line.
func WriteRecord(w io.Writer, block *core.Block) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s\n%s\n", block.HashInput(), block.Hash); err != nil {
		return err
	}
	return bw.Flush()
}
