// Package store persists uploaded photos and their JSON sidecar
// metadata in a single flat directory. An image and its sidecar share a
// filename stem and are written independently; the sidecar may be
// missing or trail the image, and readers must tolerate that.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MetadataKeys are the form fields recognized on upload, in addition to
// the system-assigned received_ts and photo_filename.
var MetadataKeys = []string{"lat", "lon", "accuracy", "location_ts"}

// Store is a filesystem-backed photo store.
type Store struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// New creates the upload directory if needed and returns a store over it.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now, logger: logger}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the image synchronously and returns the generated
// filename, photo_<YYYYMMDD_HHMMSS>.jpg from the current wall-clock
// time. Two uploads landing in the same second share a name and the
// second overwrites the first; known limitation, kept as-is.
func (s *Store) Save(image []byte) (string, error) {
	filename := fmt.Sprintf("photo_%s.jpg", s.now().Format("20060102_150405"))
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, image, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return filename, nil
}

// SaveMetadata writes the JSON sidecar next to filename, replacing the
// image extension with .json. Independent of the image write; callers
// treat a failure here as a degraded upload, not a failed one.
func (s *Store) SaveMetadata(filename string, fields map[string]any) error {
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	path := filepath.Join(s.dir, stem(filename)+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Latest returns the newest image filename and its mtime in epoch
// seconds. The fixed-width zero-padded timestamp in the name makes
// lexicographic order chronological, so this is a descending name scan.
// An empty store returns ("", 0, nil).
func (s *Store) Latest() (string, int64, error) {
	names, err := s.imageNames()
	if err != nil {
		return "", 0, err
	}
	if len(names) == 0 {
		return "", 0, nil
	}
	latest := names[0]
	info, err := os.Stat(filepath.Join(s.dir, latest))
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat %s: %w", latest, err)
	}
	return latest, info.ModTime().Unix(), nil
}

// List returns every stored image newest-first, each paired with its
// sidecar metadata. A missing or unreadable sidecar nulls that one
// entry's metadata and never fails the listing.
func (s *Store) List() ([]Entry, error) {
	names, err := s.imageNames()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, Entry{
			Filename: name,
			Metadata: s.readSidecar(name),
		})
	}
	return entries, nil
}

// Entry is one listing item.
type Entry struct {
	Filename string         `json:"filename"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Store) readSidecar(imageName string) map[string]any {
	path := filepath.Join(s.dir, stem(imageName)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("unreadable metadata sidecar", "file", path, "error", err)
		}
		return nil
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		s.logger.Warn("corrupt metadata sidecar", "file", path, "error", err)
		return nil
	}
	return meta
}

// imageNames returns stored .jpg names sorted descending. Live scan, no
// snapshot isolation: a concurrent upload may or may not be visible.
func (s *Store) imageNames() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}
	var names []string
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".jpg") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Path resolves name inside the upload directory and rejects anything
// that would escape it.
func (s *Store) Path(name string) (string, error) {
	absBase, err := filepath.Abs(s.dir)
	if err != nil {
		return "", fmt.Errorf("invalid upload directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt")
	}
	return absPath, nil
}

// MetadataFromForm extracts the recognized metadata fields from an
// upload's form values. Each present, non-empty field is parsed as a
// number; when parsing fails the raw string is kept as provided. Empty
// or absent fields are omitted entirely.
func MetadataFromForm(form url.Values) map[string]any {
	meta := make(map[string]any)
	for _, key := range MetadataKeys {
		val := form.Get(key)
		if val == "" {
			continue
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			meta[key] = f
		} else {
			meta[key] = val
		}
	}
	return meta
}

func stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
