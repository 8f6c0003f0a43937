package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"market_etl/internal/feature/alerts/domain/entity"
	candleentity "market_etl/internal/feature/candles/domain/entity"
	"market_etl/internal/shared/errs"
)

// stageDTO is a named stage with free-form numeric parameters,
// e.g. {name: ma_cross, params: {fast: 10, slow: 30}}.
type stageDTO struct {
	Name   string             `yaml:"name" validate:"required"`
	Params map[string]float64 `yaml:"params"`
}

type alertDTO struct {
	Name            string    `yaml:"name"`
	Ticker          string    `yaml:"ticker" validate:"required"`
	Freq            string    `yaml:"freq" validate:"required"`
	Enabled         *bool     `yaml:"enabled"`
	Entry           *stageDTO `yaml:"entry" validate:"required"`
	TargetPrice     *stageDTO `yaml:"target_price"`
	StopLoss        *stageDTO `yaml:"stop_loss"`
	ThrottleSeconds int       `yaml:"throttle_seconds" validate:"min=0"`
	Channel         string    `yaml:"channel" validate:"omitempty,oneof=telegram webhook"`
	ChatID          string    `yaml:"chat_id"`
	URL             string    `yaml:"url" validate:"omitempty,url"`
	SuppressRepeat  bool      `yaml:"suppress_repeat"`
}

type alertsFile struct {
	Alerts []alertDTO `yaml:"alerts"`
}

// Alerts is the validated alert configuration.
type Alerts struct {
	Rules    []entity.Rule
	Rejected []error
}

// LoadAlerts は path のアラート設定を読み込みます。
func LoadAlerts(path string) (Alerts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Alerts{}, fmt.Errorf("%w: read alerts config: %w", errs.ErrValidation, err)
	}
	return ParseAlerts(data)
}

// ParseAlerts は YAML または JSON のアラート設定を解釈します。
func ParseAlerts(data []byte) (Alerts, error) {
	var file alertsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Alerts{}, fmt.Errorf("%w: parse alerts config: %w", errs.ErrValidation, err)
	}

	var out Alerts
	seen := make(map[string]bool, len(file.Alerts))
	for i, dto := range file.Alerts {
		r, err := dto.toRule()
		if err == nil && seen[r.Key()] {
			err = fmt.Errorf("%w: duplicate alert %s", errs.ErrValidation, r.Key())
		}
		if err != nil {
			err = fmt.Errorf("alert #%d: %w", i+1, err)
			slog.Warn("alert rule rejected", "index", i+1, "ticker", dto.Ticker, "freq", dto.Freq, "error", err)
			out.Rejected = append(out.Rejected, err)
			continue
		}
		seen[r.Key()] = true
		out.Rules = append(out.Rules, r)
	}
	return out, nil
}

func (d alertDTO) toRule() (entity.Rule, error) {
	if err := validate.Struct(d); err != nil {
		return entity.Rule{}, fmt.Errorf("%w: %w", errs.ErrValidation, err)
	}
	iv, err := candleentity.ParseInterval(d.Freq)
	if err != nil {
		return entity.Rule{}, err
	}

	entry, err := d.Entry.toEntrySpec()
	if err != nil {
		return entity.Rule{}, err
	}

	r := entity.Rule{
		Name:            d.Name,
		Ticker:          strings.ToUpper(strings.TrimSpace(d.Ticker)),
		Interval:        iv.Code,
		Enabled:         true,
		Entry:           entry,
		ThrottleSeconds: d.ThrottleSeconds,
		Channel:         d.Channel,
		SuppressRepeat:  d.SuppressRepeat,
	}
	if r.Name == "" {
		r.Name = entry.Kind
	}
	if d.Enabled != nil {
		r.Enabled = *d.Enabled
	}
	if r.Target, err = d.TargetPrice.toLevel("atr_target"); err != nil {
		return entity.Rule{}, err
	}
	if r.Stop, err = d.StopLoss.toLevel("atr_stop"); err != nil {
		return entity.Rule{}, err
	}

	if r.Channel == "" {
		r.Channel = entity.ChannelTelegram
	}
	switch r.Channel {
	case entity.ChannelTelegram:
		r.Destination = strings.TrimSpace(d.ChatID)
	case entity.ChannelWebhook:
		r.Destination = strings.TrimSpace(d.URL)
	}
	if r.Destination == "" {
		return entity.Rule{}, fmt.Errorf("%w: channel %s requires a destination", errs.ErrValidation, r.Channel)
	}
	return r, nil
}

func (s *stageDTO) toEntrySpec() (entity.EntrySpec, error) {
	if err := validate.Struct(s); err != nil {
		return entity.EntrySpec{}, fmt.Errorf("%w: entry: %w", errs.ErrValidation, err)
	}
	switch s.Name {
	case entity.KindMACross:
		fast, slow := int(s.Params["fast"]), int(s.Params["slow"])
		if fast < 1 || slow < 1 || fast == slow {
			return entity.EntrySpec{}, fmt.Errorf("%w: ma_cross requires distinct positive fast and slow", errs.ErrValidation)
		}
		return entity.EntrySpec{Kind: entity.KindMACross, Fast: fast, Slow: slow}, nil
	case entity.KindVolatilitySpike:
		m := s.Params["multiplier"]
		if m <= 0 {
			return entity.EntrySpec{}, fmt.Errorf("%w: volatility_spike requires a positive multiplier", errs.ErrValidation)
		}
		return entity.EntrySpec{Kind: entity.KindVolatilitySpike, Multiplier: m}, nil
	default:
		return entity.EntrySpec{}, fmt.Errorf("%w: unknown entry signal %q", errs.ErrValidation, s.Name)
	}
}

func (s *stageDTO) toLevel(kind string) (*entity.LevelSpec, error) {
	if s == nil {
		return nil, nil
	}
	if s.Name != kind {
		return nil, fmt.Errorf("%w: unknown level %q (want %s)", errs.ErrValidation, s.Name, kind)
	}
	m := s.Params["multiplier"]
	if m <= 0 {
		return nil, fmt.Errorf("%w: %s requires a positive multiplier", errs.ErrValidation, kind)
	}
	return &entity.LevelSpec{Multiplier: decimal.NewFromFloat(m)}, nil
}
