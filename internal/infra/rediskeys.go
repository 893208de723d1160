package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "moperator"
)

// Ключи состояния
const (
	// RedisKeyApprovalPrefix — префикс записей pending approval (TTL 30 минут).
	RedisKeyApprovalPrefix = RedisNamespace + ":approval:"

	// RedisKeyAuthorizedEmails — Set дополнительных авторизованных email'ов,
	// управляемый в рантайме (дополняет статический allow-list из конфига).
	RedisKeyAuthorizedEmails = RedisNamespace + ":policy:authorized_emails"

	// RedisKeyLockPolicyWarmup — распределенная блокировка прогрева allow-list.
	RedisKeyLockPolicyWarmup = RedisNamespace + ":lock:warmup:policy"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanPolicyUpdate — канал трансляции изменений allow-list
	// ("email:on" / "email:off") на все инстансы.
	RedisChanPolicyUpdate = RedisNamespace + ":policy:update"
)

// ApprovalKey строит ключ записи pending approval по её id.
func ApprovalKey(id string) string {
	return RedisKeyApprovalPrefix + id
}
