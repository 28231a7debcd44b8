// Package backup snapshots stored assignments to a file and restores them.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nvandessel/ab-test/internal/store"
)

// Snapshot is the payload of a snapshot file.
type Snapshot struct {
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// Entry is one stored key and its raw value.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Backup writes every key in s to outputPath.
func Backup(ctx context.Context, s store.Store, outputPath string) (*Snapshot, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	snap := &Snapshot{
		CreatedAt: time.Now().UTC(),
		Entries:   make([]Entry, 0, len(keys)),
	}
	for _, key := range keys {
		value, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if !ok {
			continue
		}
		snap.Entries = append(snap.Entries, Entry{Key: key, Value: value})
	}

	if err := writeFile(outputPath, snap); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	return snap, nil
}

// RestoreMode controls how restore handles keys that already hold a value.
type RestoreMode string

const (
	// RestoreMerge keeps existing values and only fills missing keys (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace clears the store before restoring.
	RestoreReplace RestoreMode = "replace"
)

// ParseRestoreMode maps a flag value to a RestoreMode.
func ParseRestoreMode(s string) (RestoreMode, error) {
	switch RestoreMode(strings.ToLower(s)) {
	case "", RestoreMerge:
		return RestoreMerge, nil
	case RestoreReplace:
		return RestoreReplace, nil
	default:
		return "", fmt.Errorf("unknown restore mode %q (want merge or replace)", s)
	}
}

// RestoreResult counts what a restore did.
type RestoreResult struct {
	Restored int `json:"restored"`
	Skipped  int `json:"skipped"`
	Cleared  int `json:"cleared"`
}

// Restore loads a snapshot from inputPath into s.
func Restore(ctx context.Context, s store.Store, inputPath string, mode RestoreMode) (*RestoreResult, error) {
	snap, err := readFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	result := &RestoreResult{}

	if mode == RestoreReplace {
		keys, err := s.Keys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list keys: %w", err)
		}
		for _, key := range keys {
			if err := s.Delete(ctx, key); err != nil {
				return nil, fmt.Errorf("failed to clear %s: %w", key, err)
			}
			result.Cleared++
		}
	}

	for _, e := range snap.Entries {
		if mode == RestoreMerge {
			existing, ok, err := s.Get(ctx, e.Key)
			if err != nil {
				return nil, fmt.Errorf("failed to check existing key %s: %w", e.Key, err)
			}
			if ok && existing != "" {
				result.Skipped++
				continue
			}
		}
		if err := s.Set(ctx, e.Key, e.Value); err != nil {
			return nil, fmt.Errorf("failed to restore %s: %w", e.Key, err)
		}
		result.Restored++
	}

	return result, nil
}

// GeneratePath creates a timestamped snapshot filename in dir.
func GeneratePath(dir string) string {
	ts := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("abtest-backup-%s.snap", ts))
}

// Rotate keeps only the most recent keepN snapshots in dir.
// keepN must be at least 1 so the newest snapshot always survives.
func Rotate(dir string, keepN int) (deleted []string, err error) {
	if keepN < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keepN)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "abtest-backup-") && filepath.Ext(e.Name()) == ".snap" {
			names = append(names, e.Name())
		}
	}

	// newest first; the timestamp is in the name
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	if len(names) <= keepN {
		return nil, nil
	}
	for _, name := range names[keepN:] {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			return deleted, fmt.Errorf("failed to remove old backup %s: %w", name, err)
		}
		deleted = append(deleted, path)
	}
	return deleted, nil
}
