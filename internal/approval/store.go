package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/domain"
	"github.com/joe-reitz/oss-moperator/internal/infra"
)

// Store — долговечное хранилище pending approvals.
// Единственный источник правды для «операция еще ждет решения»:
// состояние сообщения в чате (наличие кнопок) авторитетным не является.
type Store interface {
	// Available сообщает, сконфигурирован ли бэкенд.
	Available() bool

	// Put сохраняет запись с фиксированным TTL от текущего момента.
	// Возвращает domain.ErrStoreUnavailable, если бэкенда нет (записи не происходит).
	Put(ctx context.Context, app *domain.PendingApproval) error

	// Get возвращает живую (неистекшую) запись или domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.PendingApproval, error)

	// Claim атомарно изымает запись: ровно один из конкурирующих вызовов
	// получает её, остальные — domain.ErrNotFound. Это единственный арбитр
	// exactly-once при одновременных кликах Approve.
	Claim(ctx context.Context, id string) (*domain.PendingApproval, error)

	// Delete — идемпотентное удаление; несуществующий id — no-op.
	Delete(ctx context.Context, id string) error

	// SetPromptRef один раз проставляет ссылку на прикрепленный промпт,
	// сохраняя оставшийся TTL. Ошибка не фатальна для workflow.
	SetPromptRef(ctx context.Context, id, promptTS string) error

	// ScanAll лениво перебирает все живые записи, вызывая fn для каждой.
	// fn возвращает false для досрочной остановки. Перебор best-effort:
	// записи, удаленные по ходу, просто пропускаются.
	ScanAll(ctx context.Context, fn func(*domain.PendingApproval) bool) error
}

// RedisStore — продовая реализация поверх Redis.
// TTL обеспечивается самим Redis (SET EX), абсолютный, не продлевается на чтении.
type RedisStore struct {
	rdb    *redis.Client // nil = бэкенд не сконфигурирован
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.Named("approval-store"),
	}
}

func (s *RedisStore) Available() bool {
	return s.rdb != nil
}

func (s *RedisStore) Put(ctx context.Context, app *domain.PendingApproval) error {
	if s.rdb == nil {
		s.logger.Error("redis not configured — cannot store approvals")
		return domain.ErrStoreUnavailable
	}

	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}

	// NX: id генерируются заново на каждый запрос и не переиспользуются,
	// перезапись чужой записи — ошибка инварианта, а не нормальный путь.
	ok, err := s.rdb.SetNX(ctx, infra.ApprovalKey(app.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if !ok {
		return fmt.Errorf("approval id collision: %s", app.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.PendingApproval, error) {
	if s.rdb == nil {
		return nil, domain.ErrStoreUnavailable
	}

	data, err := s.rdb.Get(ctx, infra.ApprovalKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeApproval(data)
}

func (s *RedisStore) Claim(ctx context.Context, id string) (*domain.PendingApproval, error) {
	if s.rdb == nil {
		return nil, domain.ErrStoreUnavailable
	}

	// GETDEL атомарен: при конкурирующих кликах значение достанется
	// ровно одному вызову, остальные увидят redis.Nil.
	data, err := s.rdb.GetDel(ctx, infra.ApprovalKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel: %w", err)
	}
	return decodeApproval(data)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if s.rdb == nil {
		return nil
	}
	if err := s.rdb.Del(ctx, infra.ApprovalKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) SetPromptRef(ctx context.Context, id, promptTS string) error {
	if s.rdb == nil {
		return domain.ErrStoreUnavailable
	}

	app, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if app.PromptTS != "" {
		return fmt.Errorf("prompt ref already set for approval %s", id)
	}
	app.PromptTS = promptTS

	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal approval: %w", err)
	}

	// XX + KEEPTTL: пишем только поверх живого ключа, TTL не трогаем.
	// Если запись между Get и Set изъята (клик или истечение), безусловный
	// Set воскресил бы её без TTL — бессмертный дубль, готовый к повторному
	// исполнению.
	ok, err := s.rdb.SetXX(ctx, infra.ApprovalKey(id), data, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("redis set keepttl: %w", err)
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (s *RedisStore) ScanAll(ctx context.Context, fn func(*domain.PendingApproval) bool) error {
	if s.rdb == nil {
		return domain.ErrStoreUnavailable
	}

	iter := s.rdb.Scan(ctx, 0, infra.RedisKeyApprovalPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // удалена между SCAN и GET — пропускаем
		}
		if err != nil {
			return fmt.Errorf("redis get during scan: %w", err)
		}

		app, err := decodeApproval(data)
		if err != nil {
			s.logger.Warn("skipping corrupt approval record", zap.String("key", iter.Val()))
			continue
		}
		if !fn(app) {
			return nil
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

func decodeApproval(data []byte) (*domain.PendingApproval, error) {
	var app domain.PendingApproval
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("unmarshal approval: %w", err)
	}
	return &app, nil
}
