package closer

import "time"

const (
	// defaultInitialBackoff はクローズ再試行の初回遅延。
	defaultInitialBackoff = 5 * time.Second
	// defaultMaxBackoff はクローズ再試行の最大遅延。
	defaultMaxBackoff = 5 * time.Minute
	// defaultMaxAttempts は1回の発火あたりの最大試行回数。
	// 使い切った場合もスイープが後から拾うため、クローズが失われることはない。
	defaultMaxAttempts = 10
)

// RetryConfig はストア障害時のクローズ再試行の設定を保持する。
type RetryConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// DefaultRetryConfig はデフォルトの再試行設定を返す。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		MaxAttempts:    defaultMaxAttempts,
	}
}

// Backoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回InitialBackoff、2倍ずつ増加、最大MaxBackoff。
func (c RetryConfig) Backoff(failures int) time.Duration {
	delay := c.InitialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return delay
}
