package remoteconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SnapshotFile stores the last successfully fetched values on disk so a
// start without network still sees the operator's last settings
type SnapshotFile struct {
	path string
	now  func() time.Time
}

type snapshotDoc struct {
	SavedAt time.Time        `yaml:"saved_at"`
	Values  map[string]int64 `yaml:"values"`
}

// NewSnapshotFile creates a snapshot at path. An empty path disables it.
func NewSnapshotFile(path string) *SnapshotFile {
	if path == "" {
		return nil
	}
	return &SnapshotFile{path: path, now: time.Now}
}

// Path returns the file location
func (f *SnapshotFile) Path() string {
	return f.path
}

// Load reads the snapshot. A missing file yields no values and no error.
func (f *SnapshotFile) Load() (map[Key]int64, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var doc snapshotDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", ErrInvalidPayload, err)
	}

	out := make(map[Key]int64, len(doc.Values))
	for k, v := range doc.Values {
		out[Key(k)] = v
	}
	return out, nil
}

// Save writes values atomically via a temp file and rename
func (f *SnapshotFile) Save(values []Value) error {
	doc := snapshotDoc{
		SavedAt: f.now().UTC(),
		Values:  make(map[string]int64, len(values)),
	}
	for _, v := range values {
		doc.Values[string(v.Key)] = v.Current
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".remoteconfig-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}
