// Package sqlstate stores scheduler and alert state in SQL tables through gorm.
package sqlstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	alertentity "market_etl/internal/feature/alerts/domain/entity"
	alertusecase "market_etl/internal/feature/alerts/usecase"
	"market_etl/internal/feature/schedule/domain/entity"
	scheduleusecase "market_etl/internal/feature/schedule/usecase"
	"market_etl/internal/shared/errs"
)

type ScheduleStateModel struct {
	Key        string    `gorm:"column:state_key;primaryKey;size:64"`
	LastRunAt  time.Time `gorm:"not null"`
	LastStatus string    `gorm:"size:16;not null"`
	RowsAdded  int       `gorm:"not null;default:0"`
	LastError  string    `gorm:"type:text"`
	UpdatedAt  time.Time
}

func (ScheduleStateModel) TableName() string {
	return "schedule_states"
}

type AlertStateModel struct {
	Key              string    `gorm:"column:state_key;primaryKey;size:128"`
	LastDispatchedAt time.Time `gorm:"not null"`
	LastSignal       int       `gorm:"not null;default:0"`
	LastOpenTime     int64     `gorm:"not null;default:0"`
	UpdatedAt        time.Time
}

func (AlertStateModel) TableName() string {
	return "alert_states"
}

// Models はマイグレーション対象のモデルです。
func Models() []any {
	return []any{&ScheduleStateModel{}, &AlertStateModel{}}
}

type scheduleStateSQL struct {
	db *gorm.DB
}

var _ scheduleusecase.StateStore = (*scheduleStateSQL)(nil)

// NewScheduleStateStore は schedule_states テーブルを使うストアを返します。
func NewScheduleStateStore(db *gorm.DB) *scheduleStateSQL {
	return &scheduleStateSQL{db: db}
}

func (s *scheduleStateSQL) Get(ctx context.Context, key string) (entity.State, bool, error) {
	var m ScheduleStateModel
	err := s.db.WithContext(ctx).Where("state_key = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entity.State{}, false, nil
	}
	if err != nil {
		return entity.State{}, false, fmt.Errorf("%w: load schedule state %s: %w", errs.ErrStorage, key, err)
	}
	return m.toEntity(), true, nil
}

func (s *scheduleStateSQL) Put(ctx context.Context, key string, st entity.State) error {
	m := ScheduleStateModel{
		Key:        key,
		LastRunAt:  st.LastRunAt.UTC(),
		LastStatus: string(st.LastStatus),
		RowsAdded:  st.RowsAdded,
		LastError:  st.LastError,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		UpdateAll: true,
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("%w: save schedule state %s: %w", errs.ErrStorage, key, err)
	}
	return nil
}

func (s *scheduleStateSQL) List(ctx context.Context) (map[string]entity.State, error) {
	var ms []ScheduleStateModel
	if err := s.db.WithContext(ctx).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("%w: list schedule states: %w", errs.ErrStorage, err)
	}
	out := make(map[string]entity.State, len(ms))
	for _, m := range ms {
		out[m.Key] = m.toEntity()
	}
	return out, nil
}

func (m ScheduleStateModel) toEntity() entity.State {
	return entity.State{
		LastRunAt:  m.LastRunAt.UTC(),
		LastStatus: entity.Status(m.LastStatus),
		RowsAdded:  m.RowsAdded,
		LastError:  m.LastError,
	}
}

type alertStateSQL struct {
	db *gorm.DB
}

var _ alertusecase.StateStore = (*alertStateSQL)(nil)

// NewAlertStateStore は alert_states テーブルを使うストアを返します。
func NewAlertStateStore(db *gorm.DB) *alertStateSQL {
	return &alertStateSQL{db: db}
}

func (s *alertStateSQL) Get(ctx context.Context, key string) (alertentity.State, bool, error) {
	var m AlertStateModel
	err := s.db.WithContext(ctx).Where("state_key = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return alertentity.State{}, false, nil
	}
	if err != nil {
		return alertentity.State{}, false, fmt.Errorf("%w: load alert state %s: %w", errs.ErrStorage, key, err)
	}
	return alertentity.State{
		LastDispatchedAt: m.LastDispatchedAt.UTC(),
		LastSignal:       m.LastSignal,
		LastOpenTime:     m.LastOpenTime,
	}, true, nil
}

func (s *alertStateSQL) Put(ctx context.Context, key string, st alertentity.State) error {
	m := AlertStateModel{
		Key:              key,
		LastDispatchedAt: st.LastDispatchedAt.UTC(),
		LastSignal:       st.LastSignal,
		LastOpenTime:     st.LastOpenTime,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		UpdateAll: true,
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("%w: save alert state %s: %w", errs.ErrStorage, key, err)
	}
	return nil
}
