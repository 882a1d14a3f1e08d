package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/soyeahso/delegent/internal/logging"
)

// FileStore is a JSON Lines log, one turn per line. The whole file is
// loaded at open; appends go to the end of the file and to the in-memory
// copy under the write lock.
type FileStore struct {
	mu    sync.RWMutex
	f     *os.File
	path  string
	turns []Turn
	log   *logging.Logger
}

// OpenFile opens (or creates) the log at path.
func OpenFile(path string, log *logging.Logger) (*FileStore, error) {
	if log == nil {
		log = logging.Nop()
	}
	log = log.Sub("memory")

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating memory directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening memory file: %w", err)
	}

	s := &FileStore{f: f, path: path, log: log}
	if err := s.load(); err != nil {
		f.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Int("turns", len(s.turns)).Msg("memory opened")
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading memory file: %w", err)
	}

	var good int64
	lineNo := 0
	for len(data) > 0 {
		lineNo++
		line := data
		rest := []byte(nil)
		complete := false
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, rest, complete = data[:i], data[i+1:], true
		}

		if len(bytes.TrimSpace(line)) > 0 {
			var t Turn
			if err := json.Unmarshal(line, &t); err != nil {
				if len(rest) > 0 {
					return fmt.Errorf("memory file %s line %d: %w", s.path, lineNo, err)
				}
				// Torn final write: drop the fragment so the next append
				// starts on a clean line.
				s.log.Warn().Str("path", s.path).Int("line", lineNo).Err(err).Msg("skipping truncated memory entry")
				if err := s.f.Truncate(good); err != nil {
					return fmt.Errorf("truncating memory file: %w", err)
				}
				return nil
			}
			s.turns = append(s.turns, t)
		}

		if !complete {
			// Valid JSON without a newline: terminate it.
			if _, err := s.f.Write([]byte("\n")); err != nil {
				return fmt.Errorf("repairing memory file: %w", err)
			}
			return nil
		}
		good += int64(len(line)) + 1
		data = rest
	}
	return nil
}

// Turns returns a copy of the log.
func (s *FileStore) Turns(ctx context.Context) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

// Append writes the batch with a single write followed by fsync.
func (s *FileStore) Append(ctx context.Context, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch, err := prepare(turns)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, t := range batch {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encoding turn: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("memory store is closed")
	}
	if _, err := s.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing memory file: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("syncing memory file: %w", err)
	}
	s.turns = append(s.turns, batch...)
	return nil
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Close closes the file. It is safe to call more than once.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
