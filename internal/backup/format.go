package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FormatVersion is the only snapshot layout this package writes and reads.
const FormatVersion = 1

// MaxPayloadSize caps both the compressed body and the decompressed payload (20MB).
const MaxPayloadSize = 20 * 1024 * 1024

// ErrCorruptSnapshot is returned when a snapshot body does not match its header.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// header is the plain-text first line of a snapshot file. It describes the
// gzip body that follows.
type header struct {
	Version  int    `json:"version"`
	Checksum string `json:"checksum"`
	Entries  int    `json:"entries"`
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// headerFor describes body as the compressed form of s.
func headerFor(s *Snapshot, body []byte) header {
	return header{
		Version:  FormatVersion,
		Checksum: checksum(body),
		Entries:  len(s.Entries),
	}
}

// checkBody verifies the version and checksum before decompression.
func (h header) checkBody(body []byte) error {
	if h.Version != FormatVersion {
		return fmt.Errorf("unsupported snapshot version: %d", h.Version)
	}
	if got := checksum(body); got != h.Checksum {
		return fmt.Errorf("%w: checksum mismatch: expected %s, got %s", ErrCorruptSnapshot, h.Checksum, got)
	}
	return nil
}

// checkEntries verifies the decoded snapshot against the entry count the
// header promised.
func (h header) checkEntries(s *Snapshot) error {
	if len(s.Entries) != h.Entries {
		return fmt.Errorf("%w: header lists %d entries, payload has %d", ErrCorruptSnapshot, h.Entries, len(s.Entries))
	}
	return nil
}

// encode writes the header line followed by the gzip body to w.
func (s *Snapshot) encode(w io.Writer) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	var body bytes.Buffer
	gzw := gzip.NewWriter(&body)
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("compressing snapshot: %w", err)
	}

	line, err := json.Marshal(headerFor(s, body.Bytes()))
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.Write(line)
	bw.WriteByte('\n')
	bw.Write(body.Bytes())
	return bw.Flush()
}

// decode reads a snapshot written by encode, validating it against its header.
func decode(r io.Reader) (*Snapshot, error) {
	br := bufio.NewReader(r)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	var h header
	if err := json.Unmarshal(bytes.TrimSpace(line), &h); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}

	body, err := readCapped(br)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if err := h.checkBody(body); err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	defer gzr.Close()

	payload, err := readCapped(gzr)
	if err != nil {
		return nil, fmt.Errorf("decompressing body: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := h.checkEntries(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func readCapped(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxPayloadSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxPayloadSize {
		return nil, fmt.Errorf("exceeds maximum size of %d bytes", MaxPayloadSize)
	}
	return data, nil
}

// writeFile replaces path with s through a temp file and rename.
func writeFile(path string, s *Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := s.encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

func readFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return decode(f)
}
