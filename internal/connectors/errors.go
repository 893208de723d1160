package connectors

import (
	"fmt"
	"time"
)

// ThrottleError сигнализирует о вендорском rate limit (HTTP 429).
// RetryAfter берется из одноименного заголовка и учитывается
// в расчете задержки ретрая.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

// APIError — невосстановимый ответ вендора (4xx кроме 429).
// Ретраить бесполезно, отдаем наверх как есть.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Body)
}
