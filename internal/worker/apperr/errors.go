package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"

	"token-analyzer/pkg/gateway"
	"token-analyzer/pkg/httpclient"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrUpstreamTransient = errors.New("upstream transient error")
	ErrUpstreamFatal     = errors.New("upstream fatal error")
	ErrDataNotFound      = errors.New("Data not found. Please analyze the token first.")
	ErrPersistence       = errors.New("persistence error")
	// ErrPartialResult 持有者拉取中途失败，但已拿到部分结果
	ErrPartialResult = errors.New("partial result")
)

// Kind 错误分类，用于日志与指标
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindTransient  Kind = "upstream_transient"
	KindFatal      Kind = "upstream_fatal"
	KindNotFound   Kind = "data_not_found"
	KindPersist    Kind = "persistence"
	KindPartial    Kind = "partial"
	KindUnknown    Kind = "unknown"
)

func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func InvalidTokenID(tokenID string) error {
	return Validation("invalid token id %q, expected shard.realm.num", tokenID)
}

func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func NotFound(what string) error {
	return fmt.Errorf("%w (%s)", ErrDataNotFound, what)
}

// Partial 包装部分成功时的底层错误
func Partial(err error) error {
	return fmt.Errorf("%w: %w", ErrPartialResult, err)
}

// Upstream 按 Classify 的结果给上游错误打上 transient / fatal 标记
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	switch Classify(err) {
	case KindTransient:
		return fmt.Errorf("%w: %s: %w", ErrUpstreamTransient, op, err)
	case KindFatal:
		return fmt.Errorf("%w: %s: %w", ErrUpstreamFatal, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Classify 429/503 为 transient，其余 HTTP 错误、超时、网络错误为 fatal
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDataNotFound):
		return KindNotFound
	case errors.Is(err, ErrPersistence):
		return KindPersist
	case errors.Is(err, ErrPartialResult):
		return KindPartial
	case errors.Is(err, ErrUpstreamTransient):
		return KindTransient
	case errors.Is(err, ErrUpstreamFatal):
		return KindFatal
	case errors.Is(err, gateway.ErrThrottled), httpclient.IsThrottled(err):
		return KindTransient
	case httpclient.StatusCode(err) > 0:
		return KindFatal
	case errors.Is(err, context.DeadlineExceeded):
		return KindFatal
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindFatal
	}
	return KindUnknown
}

// IsTransient 供重试策略判断
func IsTransient(err error) bool {
	return Classify(err) == KindTransient
}

// GatewayExhausted 网关已按自身策略重试过限流，调用方不再叠加重试
func GatewayExhausted(err error) bool {
	return errors.Is(err, gateway.ErrThrottled)
}

// Retryable 拉取层可重试的错误：transient 且没有被网关重试过
func Retryable(err error) bool {
	return IsTransient(err) && !GatewayExhausted(err)
}
