package common

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryableFunc 一次可重试的调用，返回 nil 表示成功
type RetryableFunc func() error

// Config 重试策略
type Config struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	retryIf      func(error) bool
	onRetry      func(attempt int, err error)
}

type Option func(*Config)

// WithMaxRetries 首次调用之外最多再试 n 次，默认 3
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithInitialDelay 第一次退避的等待时间，默认 1s
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.initialDelay = d
		}
	}
}

// WithMaxDelay 退避上限，默认 30s
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithMultiplier 每次退避的放大倍数，默认 2
func WithMultiplier(m float64) Option {
	return func(c *Config) {
		if m > 0 {
			c.multiplier = m
		}
	}
}

// WithRetryIf 只对 fn 返回 true 的错误重试，其余错误原样返回
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) {
		if fn != nil {
			c.retryIf = fn
		}
	}
}

// WithOnRetry 每次退避前回调，attempt 从 1 开始
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(c *Config) {
		c.onRetry = fn
	}
}

func newConfig(opts []Option) *Config {
	cfg := &Config{
		maxRetries:   3,
		initialDelay: time.Second,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		retryIf:      func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Do 按指数退避执行 fn。
// 全部失败时返回 "retry failed after N attempts" 包装的最后一个错误；
// ctx 取消时返回包装的 ctx.Err()；不可重试的错误直接返回。
//
//	err := common.Do(ctx, func() error {
//	    return poster.CreateComment(ctx, body)
//	}, common.WithMaxRetries(2), common.WithInitialDelay(time.Second))
func Do(ctx context.Context, fn RetryableFunc, opts ...Option) error {
	if fn == nil {
		return errors.New("retry: function cannot be nil")
	}
	cfg := newConfig(opts)

	err := fn()
	for attempt := 1; err != nil; attempt++ {
		if !cfg.retryIf(err) {
			return err
		}
		if attempt > cfg.maxRetries {
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.maxRetries+1, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctxErr)
		}
		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err)
		}

		timer := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted during backoff (attempt %d/%d): %w", attempt, cfg.maxRetries, ctx.Err())
		case <-timer.C:
		}
		err = fn()
	}
	return nil
}

// backoff 第 attempt 次重试前的等待: initialDelay * multiplier^(attempt-1)，不超过 maxDelay
func backoff(attempt int, cfg *Config) time.Duration {
	d := float64(cfg.initialDelay) * math.Pow(cfg.multiplier, float64(attempt-1))
	if d > float64(cfg.maxDelay) {
		return cfg.maxDelay
	}
	return time.Duration(d)
}
