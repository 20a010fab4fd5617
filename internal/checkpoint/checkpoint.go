package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Checkpoints are best-effort: a run that cannot read or write them still
// succeeds, it just restarts paging from "now" on the next invocation.

const defaultMaxAge = 24 * time.Hour

// State records how far one provider's backfill paged before its last flush.
type State struct {
	Provider     string `msgpack:"provider"`
	CursorBefore int64  `msgpack:"cursor_before"` // unix seconds; 0 means start from now
	Rows         int    `msgpack:"rows"`
	UpdatedAt    int64  `msgpack:"updated_at"` // unix milliseconds
}

// Cursor returns the stored cursor boundary, or the zero time when the state
// carries none.
func (s *State) Cursor() time.Time {
	if s == nil || s.CursorBefore <= 0 {
		return time.Time{}
	}
	return time.Unix(s.CursorBefore, 0).UTC()
}

// Manager persists per-provider checkpoint files in one directory.
type Manager struct {
	dir    string
	maxAge time.Duration
	nowFn  func() time.Time
}

// NewManager builds a manager rooted at dir, creating it when missing.
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = "checkpoints"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Manager{dir: dir, maxAge: defaultMaxAge, nowFn: time.Now}
}

// Load returns the provider's checkpoint, or nil when it is absent, stale, or
// unreadable.
func (m *Manager) Load(provider string) *State {
	raw, err := os.ReadFile(m.path(provider))
	if err != nil {
		return nil
	}
	var state State
	if err := msgpack.Unmarshal(raw, &state); err != nil {
		return nil
	}
	age := m.nowFn().UTC().Sub(time.UnixMilli(state.UpdatedAt).UTC())
	if age > m.maxAge {
		return nil
	}
	return &state
}

// Save writes the provider's checkpoint atomically via rename.
func (m *Manager) Save(state State) error {
	state.UpdatedAt = m.nowFn().UTC().UnixMilli()
	raw, err := msgpack.Marshal(&state)
	if err != nil {
		return fmt.Errorf("checkpoint: encode %s: %w", state.Provider, err)
	}
	path := m.path(state.Provider)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", state.Provider, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("checkpoint: rename %s: %w", state.Provider, err)
	}
	return nil
}

// Clear removes the provider's checkpoint after a completed run.
func (m *Manager) Clear(provider string) error {
	err := os.Remove(m.path(provider))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checkpoint: clear %s: %w", provider, err)
	}
	return nil
}

func (m *Manager) path(provider string) string {
	return filepath.Join(m.dir, provider+".ckpt")
}
