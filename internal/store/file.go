package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const fileStoreName = "storage.jsonl"

// FileStore implements Store using a JSONL file, one entry per line.
// Every Set and Delete rewrites the file before returning.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	path   string
	values map[string]string
}

// ErrCorruptFile is matched by the error NewFileStore returns when the
// storage file holds lines that do not decode.
var ErrCorruptFile = errors.New("corrupt storage file")

// CorruptFileError lists the lines of a storage file that could not be parsed.
// The file is left untouched so the records can be repaired by hand.
type CorruptFileError struct {
	Path  string
	Lines []LoadError
}

func (e *CorruptFileError) Error() string {
	lines := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		lines = append(lines, strconv.Itoa(l.Line))
	}
	return fmt.Sprintf("%s: %d malformed line(s) (%s), first: %s",
		e.Path, len(e.Lines), strings.Join(lines, ", "), e.Lines[0].Error)
}

func (e *CorruptFileError) Is(target error) bool {
	return target == ErrCorruptFile
}

// fileEntry is one line of the storage file.
type fileEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LoadError is one line that could not be parsed while loading.
type LoadError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

// NewFileStore opens (or creates) the storage file in dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	s := &FileStore{
		dir:    dir,
		path:   filepath.Join(dir, fileStoreName),
		values: make(map[string]string),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load storage file: %w", err)
	}

	return s, nil
}

// load reads the storage file. Any malformed line fails the whole load with
// a *CorruptFileError.
func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var bad []LoadError

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		var e fileEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			bad = append(bad, LoadError{
				File:    s.path,
				Line:    lineNum,
				Content: truncateForError(line),
				Error:   err.Error(),
			})
			continue
		}
		s.values[e.Key] = e.Value
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(bad) > 0 {
		return &CorruptFileError{Path: s.path, Lines: bad}
	}
	return nil
}

// Get returns the value stored at key.
func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value at key and persists the file.
func (s *FileStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.values[key]
	s.values[key] = value
	if err := s.write(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	return nil
}

// Delete removes key and persists the file.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	if err := s.write(); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *FileStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedKeys(), nil
}

func (s *FileStore) sortedKeys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// write replaces the storage file through a temp file and rename.
// Caller must hold s.mu.
func (s *FileStore) write() error {
	tmp, err := os.CreateTemp(s.dir, fileStoreName+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	encoder := json.NewEncoder(w)
	for _, k := range s.sortedKeys() {
		if err := encoder.Encode(fileEntry{Key: k, Value: s.values[k]}); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// Close is a no-op; every write is already on disk.
func (s *FileStore) Close() error {
	return nil
}

// truncateForError truncates a string for error reporting to avoid huge messages.
func truncateForError(s string) string {
	const maxLen = 100
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
