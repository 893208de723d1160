package policy

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DirectoryLookup резолвит id актора чата в проверяемый email.
// Реализуется Slack-клиентом (users.info).
type DirectoryLookup interface {
	UserEmail(ctx context.Context, userID string) (string, error)
}

type cachedEmail struct {
	email     string
	fetchedAt time.Time
}

// Authorizer решает, можно ли актору исполнять записи напрямую.
// Allow-list складывается из статической части (конфиг) и рантаймовой
// (Redis Set, синхронизируется Watcher'ом). Пустой суммарный список =
// fail-closed: гейтим всех, blanket-доступ молча не выдается.
type Authorizer struct {
	mu      sync.RWMutex
	static  map[string]struct{}
	runtime map[string]struct{}

	dir    DirectoryLookup
	logger *zap.Logger

	// L1-кэш email'ов: users.info дергается не чаще раза в cacheTTL на актора.
	cacheMu    sync.Mutex
	emailCache map[string]cachedEmail
	cacheTTL   time.Duration
	now        func() time.Time
}

func NewAuthorizer(authorizedEmails []string, dir DirectoryLookup, logger *zap.Logger) *Authorizer {
	static := make(map[string]struct{}, len(authorizedEmails))
	for _, email := range authorizedEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			static[email] = struct{}{}
		}
	}
	return &Authorizer{
		static:     static,
		runtime:    make(map[string]struct{}),
		dir:        dir,
		logger:     logger.Named("policy"),
		emailCache: make(map[string]cachedEmail),
		cacheTTL:   5 * time.Minute,
		now:        time.Now,
	}
}

// IsAuthorized проверяется в двух разных точках с двумя разными акторами:
// на авторе запроса (гейтить или нет) и на кликере (можно ли решать).
func (a *Authorizer) IsAuthorized(ctx context.Context, userID string) (bool, error) {
	a.mu.RLock()
	empty := len(a.static) == 0 && len(a.runtime) == 0
	a.mu.RUnlock()
	if empty {
		return false, nil // Default Deny (Zero Trust)
	}

	email, err := a.lookupEmail(ctx, userID)
	if err != nil {
		a.logger.Warn("directory lookup failed", zap.String("user_id", userID), zap.Error(err))
		return false, err
	}
	if email == "" {
		return false, nil
	}

	email = strings.ToLower(email)
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.static[email]; ok {
		return true, nil
	}
	_, ok := a.runtime[email]
	return ok, nil
}

// ReplaceRuntime атомарно подменяет рантаймовую часть allow-list
// (холодная загрузка из Redis при старте/переподключении).
func (a *Authorizer) ReplaceRuntime(emails []string) {
	next := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		next[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}

	a.mu.Lock()
	a.runtime = next
	a.mu.Unlock()
	a.logger.Info("runtime allow-list refreshed", zap.Int("count", len(next)))
}

// SetRuntime применяет одиночный сигнал "email:on/off" из Pub/Sub.
func (a *Authorizer) SetRuntime(email string, allowed bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}

	a.mu.Lock()
	if allowed {
		a.runtime[email] = struct{}{}
	} else {
		delete(a.runtime, email)
	}
	a.mu.Unlock()
}

func (a *Authorizer) lookupEmail(ctx context.Context, userID string) (string, error) {
	a.cacheMu.Lock()
	if cached, ok := a.emailCache[userID]; ok && a.now().Sub(cached.fetchedAt) < a.cacheTTL {
		a.cacheMu.Unlock()
		return cached.email, nil
	}
	a.cacheMu.Unlock()

	email, err := a.dir.UserEmail(ctx, userID)
	if err != nil {
		return "", err
	}

	a.cacheMu.Lock()
	a.emailCache[userID] = cachedEmail{email: email, fetchedAt: a.now()}
	a.cacheMu.Unlock()
	return email, nil
}
