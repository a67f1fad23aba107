package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/speaky-cli/speaky/internal/ttypes"
)

// EntryExt is the file extension of every cache entry.
const EntryExt = ".mp3"

const (
	dirPerm  = 0o755
	filePerm = 0o644

	tempSuffix = ".part"

	// staleTempAge is how old a temporary file must be before Clear treats it
	// as left behind by a crashed writer.
	staleTempAge = time.Hour
)

// Store is a cache directory holding one file per synthesized request.
type Store struct {
	dir string
}

// Stats describes the entries currently in the store.
type Stats struct {
	Entries int
	Bytes   int64
}

// Open prepares dir for use as a cache store, creating it and any missing
// parents.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, ttypes.CacheError("cache directory is not set", nil)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, ttypes.CacheError(fmt.Sprintf("unable to create cache directory %s", dir), err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the location of the entry for key. It does not check whether
// the entry exists.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key+EntryExt)
}

// Exists reports whether a readable entry for key is present.
func (s *Store) Exists(key string) bool {
	path := s.Path(key)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// Write consumes r and stores its bytes as the entry for key, returning the
// entry's location. The bytes go to a temporary file in the cache directory
// which is renamed over the final name only after r is exhausted, so a failed
// write never leaves a file under the entry's name. When several writers race
// on the same key the last rename wins.
//
// An error returned by r is passed back unchanged. Filesystem failures are
// reported as cache errors.
func (s *Store) Write(key string, r io.Reader) (string, error) {
	path := s.Path(key)

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*"+tempSuffix)
	if err != nil {
		return "", ttypes.CacheError("unable to create temporary entry", err)
	}
	tmpPath := tmp.Name()

	src := &sourceReader{r: r}
	_, err = io.Copy(tmp, src)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()

	if err != nil {
		_ = os.Remove(tmpPath)
		if src.err != nil {
			return "", src.err
		}
		return "", ttypes.CacheError("unable to write entry", err)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return "", ttypes.CacheError("unable to close entry", closeErr)
	}

	if err := os.Chmod(tmpPath, filePerm); err != nil {
		_ = os.Remove(tmpPath)
		return "", ttypes.CacheError("unable to set entry permissions", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", ttypes.CacheError("unable to commit entry", err)
	}

	return path, nil
}

// Clear removes every entry from the store and reports how many were removed.
// Temporary files older than staleTempAge are removed too but not counted;
// younger ones may belong to a running write and are left alone, as is
// anything else in the directory. Clearing an empty store is not an error.
func (s *Store) Clear() (int, error) {
	entries, err := s.readDir()
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, name := range entryNames(entries) {
		err := os.Remove(filepath.Join(s.dir, name))
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
			// removed concurrently
		default:
			errs = append(errs, err)
		}
	}

	for _, name := range staleTempNames(entries, time.Now().Add(-staleTempAge)) {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return removed, ttypes.CacheError("unable to remove some entries", errors.Join(errs...))
	}
	return removed, nil
}

// Stats counts the entries in the store and their total size.
func (s *Store) Stats() (Stats, error) {
	entries, err := s.readDir()
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	for _, name := range entryNames(entries) {
		info, err := os.Stat(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		st.Entries++
		st.Bytes += info.Size()
	}
	return st, nil
}

func (s *Store) readDir() ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ttypes.CacheError(fmt.Sprintf("unable to read cache directory %s", s.dir), err)
	}
	return entries, nil
}

func entryNames(entries []fs.DirEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), EntryExt) {
			continue
		}
		names = append(names, e.Name())
	}
	return names
}

// staleTempNames returns the temporary files Write left behind that were last
// modified before cutoff.
func staleTempNames(entries []fs.DirEntry, cutoff time.Time) []string {
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, tempSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// sourceReader remembers the first non-EOF error returned by r so Write can
// tell a failing source from a failing destination.
type sourceReader struct {
	r   io.Reader
	err error
}

func (sr *sourceReader) Read(p []byte) (int, error) {
	n, err := sr.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && sr.err == nil {
		sr.err = err
	}
	return n, err
}
