package policy

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joe-reitz/oss-moperator/internal/infra"
)

// Watcher держит рантаймовую часть allow-list в синхроне с Redis:
// холодная загрузка Set'а при (пере)подключении + Pub/Sub сигналы
// "email:on" / "email:off" от других инстансов.
type Watcher struct {
	rdb    *redis.Client
	auth   *Authorizer
	logger *zap.Logger
}

func NewWatcher(rdb *redis.Client, auth *Authorizer, logger *zap.Logger) *Watcher {
	return &Watcher{rdb: rdb, auth: auth, logger: logger.Named("policy-watcher")}
}

// Warmup заливает статический allow-list в Redis, если Set пуст,
// и загружает текущее состояние в L1. Распределенная блокировка (SetNX)
// не дает нескольким инстансам греть кэш одновременно.
func (w *Watcher) Warmup(ctx context.Context, seed []string) error {
	members, err := w.rdb.SMembers(ctx, infra.RedisKeyAuthorizedEmails).Result()
	if err != nil {
		return err
	}
	w.auth.ReplaceRuntime(members)

	ok, err := w.rdb.SetNX(ctx, infra.RedisKeyLockPolicyWarmup, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой инстанс уже греет
	}

	count, err := w.rdb.SCard(ctx, infra.RedisKeyAuthorizedEmails).Result()
	if err != nil {
		count = 0
		w.logger.Warn("could not check allow-list set size, proceeding with warm-up", zap.Error(err))
	}

	if count == 0 && len(seed) > 0 {
		w.logger.Info("allow-list set is empty, performing warm-up from config",
			zap.Int("count", len(seed)))

		pipe := w.rdb.Pipeline()
		for _, email := range seed {
			pipe.SAdd(ctx, infra.RedisKeyAuthorizedEmails, strings.ToLower(strings.TrimSpace(email)))
		}
		_, err = pipe.Exec(ctx)
		return err
	}

	return nil
}

// Listen — «живучая» подписка на сигналы обновления allow-list.
// Обрабатывает переподключения; при каждом успешном коннекте
// перечитывается полный Set.
func (w *Watcher) Listen(ctx context.Context, seed []string) {
	for {
		pubsub := w.rdb.Subscribe(ctx, infra.RedisChanPolicyUpdate)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			w.logger.Error("failed to subscribe", zap.Error(err))
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Синхронизация при каждом успешном коннекте
		if err := w.Warmup(ctx, seed); err != nil {
			w.logger.Error("allow-list sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					// Канал закрыт, идем на переподключение.
					// Мертвую подписку закрываем, иначе соединения текут.
					pubsub.Close()
					break loop
				}

				// Разбор формата "email:on" / "email:off"
				idx := strings.LastIndex(msg.Payload, ":")
				if idx <= 0 {
					w.logger.Error("invalid policy signal format", zap.String("payload", msg.Payload))
					continue
				}

				email := msg.Payload[:idx]
				allowed := msg.Payload[idx+1:] == "on" || msg.Payload[idx+1:] == "true"
				w.auth.SetRuntime(email, allowed)
				w.logger.Info("allow-list updated via signal",
					zap.String("email", email), zap.Bool("allowed", allowed))
			}
		}
	}
}
