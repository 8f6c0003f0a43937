package usecase

import (
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"market_etl/internal/feature/alerts/domain/entity"
	candle "market_etl/internal/feature/candles/domain/entity"
)

// EvaluationTail は判定に使う末尾の行数です。
const EvaluationTail = 500

// Detect は最新の足でルールのエントリシグナルが発生しているかを判定します。
// 発生していれば TP/SL を含む Signal を返します。
func Detect(rule entity.Rule, rows []candle.Row) (entity.Signal, bool) {
	if len(rows) > EvaluationTail {
		rows = rows[len(rows)-EvaluationTail:]
	}
	if len(rows) == 0 {
		return entity.Signal{}, false
	}

	var (
		dir   int
		event bool
	)
	switch rule.Entry.Kind {
	case entity.KindMACross:
		dir, event = maCross(rows, rule.Entry.Fast, rule.Entry.Slow)
	case entity.KindVolatilitySpike:
		dir, event = volatilitySpike(rows, rule.Entry.Multiplier)
	default:
		return entity.Signal{}, false
	}
	if !event {
		return entity.Signal{}, false
	}

	last := rows[len(rows)-1]
	sig := entity.Signal{
		Kind:      rule.Entry.Kind,
		Direction: dir,
		OpenTime:  last.OpenTime,
		Close:     decimal.NewFromFloat(last.Close),
	}
	if last.ATR != nil {
		// close ± direction × ATR × multiplier
		offset := decimal.NewFromFloat(*last.ATR).Mul(decimal.NewFromInt(int64(dir)))
		if rule.Target != nil {
			tp := sig.Close.Add(offset.Mul(rule.Target.Multiplier)).Round(8)
			sig.Target = &tp
		}
		if rule.Stop != nil {
			sl := sig.Close.Sub(offset.Mul(rule.Stop.Multiplier)).Round(8)
			sig.Stop = &sl
		}
	}
	return sig, true
}

// maCross は移動平均クロスのシグナル（1/-1、MAが計算できない足は0）を最新2本で比較します。
// 直前の足も有効なシグナルを持ち、向きが変わった場合のみイベントです。
func maCross(rows []candle.Row, fast, slow int) (int, bool) {
	if fast < 1 || slow < 1 {
		return 0, false
	}
	closes := make([]float64, len(rows))
	for i, r := range rows {
		closes[i] = r.Close
	}

	signalAt := func(i int) int {
		if i < 0 || i+1 < fast || i+1 < slow {
			return 0
		}
		maFast := stat.Mean(closes[i+1-fast:i+1], nil)
		maSlow := stat.Mean(closes[i+1-slow:i+1], nil)
		if maFast >= maSlow {
			return 1
		}
		return -1
	}

	n := len(closes)
	cur, prev := signalAt(n-1), signalAt(n-2)
	return cur, cur != 0 && prev != 0 && cur != prev
}

// volatilitySpike は true range が ATR × multiplier 以上になった最初の足をイベントとします。
// 向きはその足の陽線/陰線で決まります。
func volatilitySpike(rows []candle.Row, multiplier float64) (int, bool) {
	if multiplier <= 0 {
		return 0, false
	}
	spikeAt := func(i int) bool {
		if i < 0 {
			return false
		}
		r := rows[i]
		return r.ATR != nil && *r.ATR > 0 && r.TrueRange >= multiplier*(*r.ATR)
	}

	n := len(rows)
	if !spikeAt(n-1) || spikeAt(n-2) {
		return 0, false
	}
	last := rows[n-1]
	if last.Close >= last.Open {
		return 1, true
	}
	return -1, true
}
