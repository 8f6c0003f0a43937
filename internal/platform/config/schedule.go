// Package config loads the schedule entries and alert rules from YAML or JSON files,
// and the process settings from environment variables.
//
// ファイルはまず緩い DTO にデコードし、validator で検証してから厳密なドメイン型に変換します。
// 不正なエントリはその場で ErrValidation として除外し、残りのエントリは有効なまま返します。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	candleentity "market_etl/internal/feature/candles/domain/entity"
	candleusecase "market_etl/internal/feature/candles/usecase"
	"market_etl/internal/feature/schedule/domain/entity"
	"market_etl/internal/shared/errs"
)

var validate = validator.New()

// entryDTO is the loosely typed form of one schedule entry.
type entryDTO struct {
	Ticker          string `yaml:"ticker" validate:"required"`
	Freq            string `yaml:"freq" validate:"required"`
	ATRPeriod       *int   `yaml:"atr_period" validate:"omitempty,min=1"`
	Months          *int   `yaml:"months" validate:"omitempty,min=1"`
	Limit           *int   `yaml:"limit" validate:"omitempty,min=1,max=1000"`
	IntervalMinutes *int   `yaml:"interval_minutes" validate:"omitempty,min=0"`
	Enabled         *bool  `yaml:"enabled"`
	Output          string `yaml:"output"`
}

type scheduleFile struct {
	Entries []entryDTO `yaml:"entries"`
}

// Schedule is the validated schedule configuration.
type Schedule struct {
	Entries  []entity.Entry
	Rejected []error // entries skipped with ErrValidation, in file order
}

// LoadSchedule は path のスケジュール設定を読み込みます。
// ファイルが読めない・パースできない場合はエラーを返します（起動時の致命的エラー）。
func LoadSchedule(path string) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: read schedule config: %w", errs.ErrValidation, err)
	}
	return ParseSchedule(data)
}

// ParseSchedule は YAML または JSON のスケジュール設定を解釈します。
// `entries:` を持つマッピングと、エントリを直接並べたトップレベルの配列の両方を受け付けます。
func ParseSchedule(data []byte) (Schedule, error) {
	dtos, err := decodeEntries(data)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: parse schedule config: %w", errs.ErrValidation, err)
	}

	var out Schedule
	seen := make(map[string]bool, len(dtos))
	for i, dto := range dtos {
		e, err := dto.toEntry()
		if err == nil && seen[e.Key()] {
			err = fmt.Errorf("%w: duplicate entry %s", errs.ErrValidation, e.Key())
		}
		if err != nil {
			err = fmt.Errorf("entry #%d: %w", i+1, err)
			slog.Warn("schedule entry rejected", "index", i+1, "ticker", dto.Ticker, "freq", dto.Freq, "error", err)
			out.Rejected = append(out.Rejected, err)
			continue
		}
		seen[e.Key()] = true
		out.Entries = append(out.Entries, e)
	}
	return out, nil
}

func decodeEntries(data []byte) ([]entryDTO, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	if doc.Kind == yaml.SequenceNode {
		var dtos []entryDTO
		if err := doc.Decode(&dtos); err != nil {
			return nil, err
		}
		return dtos, nil
	}
	var file scheduleFile
	if err := doc.Decode(&file); err != nil {
		return nil, err
	}
	return file.Entries, nil
}

func (d entryDTO) toEntry() (entity.Entry, error) {
	if err := validate.Struct(d); err != nil {
		return entity.Entry{}, fmt.Errorf("%w: %w", errs.ErrValidation, err)
	}
	iv, err := candleentity.ParseInterval(d.Freq)
	if err != nil {
		return entity.Entry{}, err
	}

	e := entity.Entry{
		Ticker:          strings.ToUpper(strings.TrimSpace(d.Ticker)),
		Interval:        iv.Code,
		ATRWindow:       candleusecase.DefaultATRWindow,
		RetainedMonths:  candleusecase.DefaultRetainedMonths,
		IntervalMinutes: iv.Minutes,
		PageLimit:       candleusecase.MaxPageLimit,
		Enabled:         true,
		Output:          strings.TrimSpace(d.Output),
	}
	if d.ATRPeriod != nil {
		e.ATRWindow = *d.ATRPeriod
	}
	if d.Months != nil {
		e.RetainedMonths = *d.Months
	}
	if d.Limit != nil {
		e.PageLimit = *d.Limit
	}
	if d.IntervalMinutes != nil {
		e.IntervalMinutes = *d.IntervalMinutes
	}
	if d.Enabled != nil {
		e.Enabled = *d.Enabled
	}
	return e, nil
}
