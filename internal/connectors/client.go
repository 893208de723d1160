package connectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Client — общий HTTP-транспорт вендорских интеграций:
// Rate Limiter -> Circuit Breaker -> Retry с умным бэкоффом.
type Client struct {
	name    string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewClient(name string) *Client {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		name:    name,
		http:    &http.Client{Timeout: 30 * time.Second},
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
}

// Do выполняет запрос с полной цепочкой защиты. Тело передается байтами,
// потому что при ретрае запрос пересобирается заново.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) (int, []byte, error) {
	// 1. Rate Limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("%s: rate limit exceeded: %w", c.name, err)
	}

	var status int
	var respBody []byte

	// 2. Circuit Breaker
	_, err := c.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если вендор вернул 429 с Retry-After — слушаемся его
				var tErr *ThrottleError
				if errors.As(err, &tErr) && tErr.RetryAfter > 0 {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			var callErr error
			status, respBody, callErr = c.attempt(tCtx, method, url, header, body)
			return callErr
		})

		return nil, retryErr
	})

	if err != nil {
		return status, respBody, err
	}
	return status, respBody, nil
}

func (c *Client) attempt(ctx context.Context, method, url string, header http.Header, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, respBody, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("%s returned 429", c.name),
		}
	case resp.StatusCode >= 500:
		return resp.StatusCode, respBody, fmt.Errorf("%s: server error %d", c.name, resp.StatusCode)
	}

	// 4xx не ретраим: это невосстановимый ответ, его разбирает вызывающий
	// через ErrorFromStatus.
	return resp.StatusCode, respBody, nil
}

// ErrorFromStatus конвертирует невосстановимый статус в *APIError.
func ErrorFromStatus(status int, body []byte) error {
	if status >= 400 {
		return &APIError{StatusCode: status, Body: string(body)}
	}
	return nil
}

func parseRetryAfter(val string) time.Duration {
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
