package filestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"market_etl/internal/feature/schedule/domain/entity"
	scheduleusecase "market_etl/internal/feature/schedule/usecase"
	"market_etl/internal/shared/errs"
)

// FileLock はホスト内の排他ロックです。
//
// ロックの実体はトークンファイル（保持者と取得時刻の JSON）で、プロセスが異常終了しても残ります。
// maxAge より古いトークンは stale とみなし、次の取得者が奪取します。
// トークンの確認と書き込みは flock のガードファイルで直列化します。
type FileLock struct {
	path   string
	guard  *flock.Flock
	maxAge time.Duration
	holder string
	now    func() time.Time
}

var _ scheduleusecase.Locker = (*FileLock)(nil)

// NewFileLock は dir/scheduler.lock を使うロックを作成します。maxAge が 0 の場合は奪取しません。
func NewFileLock(dir string, maxAge time.Duration) *FileLock {
	path := filepath.Join(dir, LockFile)
	return &FileLock{
		path:   path,
		guard:  flock.New(path + ".guard"),
		maxAge: maxAge,
		holder: NewHolderID(),
		now:    time.Now,
	}
}

// NewHolderID は "hostname:pid:uuid" 形式の保持者IDを返します。
func NewHolderID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString())
}

// Acquire はロックを取得します。他の保持者が有効なロックを持っている場合は ErrLock を返します。
func (l *FileLock) Acquire(ctx context.Context) (entity.LockToken, error) {
	unlock, err := l.lockGuard(ctx)
	if err != nil {
		return entity.LockToken{}, err
	}
	defer unlock()

	now := l.now().UTC()
	current, found, err := l.readToken()
	if err != nil {
		slog.Warn("unreadable lock token, reclaiming", "path", l.path, "error", err)
	} else if found {
		if !current.Stale(now, l.maxAge) {
			return entity.LockToken{}, fmt.Errorf("%w: held by %s since %s", errs.ErrLock, current.Holder, current.AcquiredAt.Format(time.RFC3339))
		}
		slog.Warn("reclaiming stale scheduler lock", "path", l.path, "previous_holder", current.Holder, "acquired_at", current.AcquiredAt)
	}

	token := entity.LockToken{Holder: l.holder, AcquiredAt: now}
	data, err := json.Marshal(token)
	if err != nil {
		return entity.LockToken{}, fmt.Errorf("%w: encode token: %w", errs.ErrLock, err)
	}
	if err := writeAtomic(l.path, data); err != nil {
		return entity.LockToken{}, fmt.Errorf("%w: write %s: %w", errs.ErrLock, l.path, err)
	}
	return token, nil
}

// Release はロックを解放します。トークンが既に別の保持者のものであれば削除せず ErrLock を返します。
func (l *FileLock) Release(ctx context.Context, token entity.LockToken) error {
	unlock, err := l.lockGuard(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	current, found, err := l.readToken()
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrLock, err)
	}
	if !found || current.Holder != token.Holder {
		return fmt.Errorf("%w: lock lost by %s", errs.ErrLock, token.Holder)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", errs.ErrLock, l.path, err)
	}
	return nil
}

func (l *FileLock) lockGuard(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrLock, err)
	}
	ok, err := l.guard.TryLockContext(ctx, 20*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("%w: guard %s: %w", errs.ErrLock, l.guard.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: guard %s busy", errs.ErrLock, l.guard.Path())
	}
	return func() {
		if err := l.guard.Unlock(); err != nil {
			slog.Warn("failed to unlock guard", "path", l.guard.Path(), "error", err)
		}
	}, nil
}

func (l *FileLock) readToken() (entity.LockToken, bool, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entity.LockToken{}, false, nil
	}
	if err != nil {
		return entity.LockToken{}, false, err
	}
	var token entity.LockToken
	if err := json.Unmarshal(data, &token); err != nil {
		return entity.LockToken{}, false, fmt.Errorf("decode %s: %w", l.path, err)
	}
	return token, true, nil
}
