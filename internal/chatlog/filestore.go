package chatlog

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileStore keeps one append-only text log per user ID plus photo blobs,
// all under a single directory:
//
//	<dir>/logs/<userID>.log
//	<dir>/photos/<userID>_<suffix>.jpg
type FileStore struct {
	dir string
}

// NewFileStore creates the directory layout if needed.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"logs", "photos"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("chatlog: create %s dir: %w", sub, err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) logPath(userID int64) string {
	return filepath.Join(f.dir, "logs", strconv.FormatInt(userID, 10)+".log")
}

// Append implements LogStore. Lines are tab-separated with a quoted body so
// free text round-trips safely.
func (f *FileStore) Append(_ context.Context, userID int64, e Entry) error {
	fh, err := os.OpenFile(f.logPath(userID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("chatlog: open log: %w", err)
	}
	defer fh.Close()

	line := strings.Join([]string{
		e.At.UTC().Format(time.RFC3339),
		string(e.Actor),
		string(e.Kind),
		strconv.Quote(e.Body),
	}, "\t")
	if _, err := fh.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("chatlog: append: %w", err)
	}
	return nil
}

// ReadAll implements LogStore. Unparseable lines are skipped rather than
// failing the whole history.
func (f *FileStore) ReadAll(_ context.Context, userID int64) ([]Entry, error) {
	fh, err := os.Open(f.logPath(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("chatlog: open log: %w", err)
	}
	defer fh.Close()

	var entries []Entry
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		e, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("chatlog: scan log: %w", err)
	}
	return entries, nil
}

func parseLine(line string) (Entry, bool) {
	parts := strings.SplitN(line, "\t", 4)
	if len(parts) != 4 {
		return Entry{}, false
	}
	at, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return Entry{}, false
	}
	body, err := strconv.Unquote(parts[3])
	if err != nil {
		return Entry{}, false
	}
	return Entry{
		At:    at,
		Actor: Actor(parts[1]),
		Kind:  Kind(parts[2]),
		Body:  body,
	}, true
}

// Erase implements LogStore.
func (f *FileStore) Erase(_ context.Context, userID int64) error {
	if err := os.Remove(f.logPath(userID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("chatlog: erase log: %w", err)
	}
	return nil
}

// Users implements LogStore by listing existing log files.
func (f *FileStore) Users(_ context.Context) ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, "logs"))
	if err != nil {
		return nil, fmt.Errorf("chatlog: list logs: %w", err)
	}
	var out []int64
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := strings.TrimSuffix(de.Name(), ".log")
		if name == de.Name() {
			continue
		}
		id, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Save implements PhotoStore. The file name combines the user ID with a
// random suffix to avoid collisions.
func (f *FileStore) Save(userID int64, r io.Reader) (string, error) {
	var raw [6]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("chatlog: photo suffix: %w", err)
	}
	ref := fmt.Sprintf("%d_%s.jpg", userID, hex.EncodeToString(raw[:]))

	fh, err := os.Create(filepath.Join(f.dir, "photos", ref))
	if err != nil {
		return "", fmt.Errorf("chatlog: create photo: %w", err)
	}
	defer fh.Close()
	if _, err := io.Copy(fh, r); err != nil {
		return "", fmt.Errorf("chatlog: write photo: %w", err)
	}
	return ref, nil
}

// Open implements PhotoStore. The reference is restricted to a bare file
// name so it cannot escape the photos directory.
func (f *FileStore) Open(ref string) (io.ReadCloser, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return nil, fmt.Errorf("chatlog: invalid photo ref %q", ref)
	}
	fh, err := os.Open(filepath.Join(f.dir, "photos", ref))
	if err != nil {
		return nil, fmt.Errorf("chatlog: open photo: %w", err)
	}
	return fh, nil
}
