package cache

import (
	"time"
)

// TimeUntilNextBoundary は now から次の step 境界（UTC基準）までの期間を返します。
// 例: step=15分なら次の00/15/30/45分まで。step <= 0 の場合は0を返します。
func TimeUntilNextBoundary(now time.Time, step time.Duration) time.Duration {
	if step <= 0 {
		return 0
	}
	next := now.Truncate(step).Add(step)
	return next.Sub(now)
}
