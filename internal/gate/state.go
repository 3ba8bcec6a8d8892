package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrCorruptState is returned (wrapped) by FileStore.Load when the state file
// exists but cannot be decoded. The accompanying State is empty and usable.
var ErrCorruptState = errors.New("corrupt gate state")

// State is the persisted rate/dedupe memory. Timestamps are Unix seconds.
type State struct {
	PostTimestamps []int64          `json:"post_timestamps"`
	LastPostByKey  map[string]int64 `json:"last_post_by_key"`
	LastPostAt     int64            `json:"last_post_at"`
}

// EmptyState returns a State with no history.
func EmptyState() State {
	return State{
		PostTimestamps: []int64{},
		LastPostByKey:  map[string]int64{},
	}
}

func (s State) clone() State {
	out := State{
		PostTimestamps: append([]int64{}, s.PostTimestamps...),
		LastPostByKey:  make(map[string]int64, len(s.LastPostByKey)),
		LastPostAt:     s.LastPostAt,
	}
	for k, v := range s.LastPostByKey {
		out.LastPostByKey[k] = v
	}
	return out
}

// normalize fills nil collections and sorts timestamps so the oldest entry is
// always first, even for hand-edited files.
func (s *State) normalize() {
	if s.PostTimestamps == nil {
		s.PostTimestamps = []int64{}
	}
	if s.LastPostByKey == nil {
		s.LastPostByKey = map[string]int64{}
	}
	sort.Slice(s.PostTimestamps, func(i, j int) bool { return s.PostTimestamps[i] < s.PostTimestamps[j] })
}

// Store loads and saves gate state.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore persists State as JSON, replacing the live file atomically.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the live state file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the state file. A missing file yields an empty state and no
// error; an unreadable or malformed file yields an empty state and an error
// wrapping ErrCorruptState.
func (f *FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return EmptyState(), nil
		}
		return EmptyState(), fmt.Errorf("%w: read %s: %v", ErrCorruptState, f.path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return EmptyState(), fmt.Errorf("%w: decode %s: %v", ErrCorruptState, f.path, err)
	}
	st.normalize()
	return st, nil
}

// Save serializes state to a temporary file in the same directory and renames
// it over the live file. The previous file stays intact until the rename.
func (f *FileStore) Save(st State) error {
	st.normalize()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode gate state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
