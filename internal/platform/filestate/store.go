// Package filestate persists scheduler state, alert state and the scheduler lock
// as small files under a state directory.
//
// すべての書き込みは renameio による一時ファイル + rename で行い、
// 読み手が書きかけのファイルを見ることはありません。
package filestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	alertentity "market_etl/internal/feature/alerts/domain/entity"
	alertusecase "market_etl/internal/feature/alerts/usecase"
	"market_etl/internal/feature/schedule/domain/entity"
	scheduleusecase "market_etl/internal/feature/schedule/usecase"
	"market_etl/internal/shared/errs"
)

// File names under the state directory.
const (
	ScheduleStateFile = "schedule_state.json"
	AlertStateFile    = "alerts_state.json"
	LockFile          = "scheduler.lock"
)

// jsonMap is a key → value map stored as one JSON document.
type jsonMap[V any] struct {
	mu   sync.Mutex
	path string
}

func (m *jsonMap[V]) read() (map[string]V, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]V{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", errs.ErrStorage, m.path, err)
	}
	out := map[string]V{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: corrupt state file %s: %w", errs.ErrStorage, m.path, err)
	}
	return out, nil
}

func (m *jsonMap[V]) get(key string) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero V
	all, err := m.read()
	if err != nil {
		return zero, false, err
	}
	v, ok := all[key]
	return v, ok, nil
}

func (m *jsonMap[V]) put(key string, v V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	all, err := m.read()
	if err != nil {
		return err
	}
	all[key] = v
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", errs.ErrStorage, m.path, err)
	}
	if err := writeAtomic(m.path, data); err != nil {
		return fmt.Errorf("%w: write %s: %w", errs.ErrStorage, m.path, err)
	}
	return nil
}

func (m *jsonMap[V]) list() (map[string]V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read()
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}

// ScheduleStateStore はエントリごとの最終実行情報を JSON ファイルに保存します。
type ScheduleStateStore struct {
	m jsonMap[entity.State]
}

var _ scheduleusecase.StateStore = (*ScheduleStateStore)(nil)

// NewScheduleStateStore は dir/schedule_state.json を使うストアを作成します。
func NewScheduleStateStore(dir string) *ScheduleStateStore {
	return &ScheduleStateStore{m: jsonMap[entity.State]{path: filepath.Join(dir, ScheduleStateFile)}}
}

func (s *ScheduleStateStore) Get(ctx context.Context, key string) (entity.State, bool, error) {
	return s.m.get(key)
}

func (s *ScheduleStateStore) Put(ctx context.Context, key string, st entity.State) error {
	return s.m.put(key, st)
}

func (s *ScheduleStateStore) List(ctx context.Context) (map[string]entity.State, error) {
	return s.m.list()
}

// AlertStateStore はアラートキーごとの通知履歴を JSON ファイルに保存します。
type AlertStateStore struct {
	m jsonMap[alertentity.State]
}

var _ alertusecase.StateStore = (*AlertStateStore)(nil)

// NewAlertStateStore は dir/alerts_state.json を使うストアを作成します。
func NewAlertStateStore(dir string) *AlertStateStore {
	return &AlertStateStore{m: jsonMap[alertentity.State]{path: filepath.Join(dir, AlertStateFile)}}
}

func (s *AlertStateStore) Get(ctx context.Context, key string) (alertentity.State, bool, error) {
	return s.m.get(key)
}

func (s *AlertStateStore) Put(ctx context.Context, key string, st alertentity.State) error {
	return s.m.put(key, st)
}
