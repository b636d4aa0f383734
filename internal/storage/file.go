package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "dittoload/pkg/logx"
)

// fileStore appends JSON Lines.
//
// Files:
//   - <prefix>.pushes.jsonl
//   - <prefix>.runs.jsonl
//
// Writes go through a buffered writer flushed every flushEvery records and
// on Close.
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	pushes  *os.File
	pushBuf *bufio.Writer
	pending int
	runs    *os.File
}

const flushEvery = 64

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	pf, err := os.OpenFile(prefix+".pushes.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	rf, err := os.OpenFile(prefix+".runs.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = pf.Close()
		return nil, err
	}
	log.Debug("file journal opened", logx.String("prefix", prefix))
	return &fileStore{log: log, pushes: pf, pushBuf: bufio.NewWriter(pf), runs: rf}, nil
}

func (s *fileStore) AppendPush(ctx context.Context, r PushRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushes == nil {
		return ErrDisabled
	}
	if err := json.NewEncoder(s.pushBuf).Encode(r); err != nil {
		return err
	}
	s.pending++
	if s.pending >= flushEvery {
		s.pending = 0
		return s.pushBuf.Flush()
	}
	return nil
}

// RecordRun is written through immediately; run markers are rare.
func (s *fileStore) RecordRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		return ErrDisabled
	}
	if err := s.pushBuf.Flush(); err != nil {
		s.log.Debug("push journal flush failed", logx.Err(err))
	}
	s.pending = 0
	return json.NewEncoder(s.runs).Encode(r)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.pushes != nil {
		errs = append(errs, s.pushBuf.Flush(), s.pushes.Close())
		s.pushes = nil
	}
	if s.runs != nil {
		errs = append(errs, s.runs.Close())
		s.runs = nil
	}
	return errors.Join(errs...)
}
