package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации всего ассистента.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Slack        SlackConfig        `mapstructure:"slack"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Approval     ApprovalConfig     `mapstructure:"approval"`
	Integrations IntegrationsConfig `mapstructure:"integrations"`
	Admin        AdminConfig        `mapstructure:"admin"`
}

// ServerConfig описывает настройки HTTP-сервера (вебхуки Slack).
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig описывает подключение к Redis (Approval Store + allow-list).
// Пустой Addr означает «бэкенд не сконфигурирован»: approval workflow
// деградирует до "approvals unavailable", но процесс не падает.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuditConfig описывает подключение к PostgreSQL для журнала решений.
type AuditConfig struct {
	DatabaseURL   string        `mapstructure:"database_url"`
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// SlackConfig содержит креды Slack-приложения.
type SlackConfig struct {
	BotToken      string `mapstructure:"bot_token"`
	SigningSecret string `mapstructure:"signing_secret"`
	BotUserID     string `mapstructure:"bot_user_id"`
	BotName       string `mapstructure:"bot_name"`
}

// LLMConfig описывает провайдера модели для tool-calling цикла.
type LLMConfig struct {
	Provider  string `mapstructure:"provider"` // anthropic | openai
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	MaxSteps  int    `mapstructure:"max_steps"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// ApprovalConfig — параметры approval workflow (HITL).
type ApprovalConfig struct {
	TTL time.Duration `mapstructure:"ttl"`

	// Лимиты на объем массовых операций, двухуровневые:
	// авторизованные исполняют сразу (до AuthorizedBulkLimit),
	// неавторизованные идут через апрув (до BulkLimit).
	AuthorizedBulkLimit int `mapstructure:"authorized_bulk_limit"`
	BulkLimit           int `mapstructure:"bulk_limit"`

	// Allow-list email'ов, которым разрешены прямые записи.
	// Пустой список = fail-closed: гейтим всех.
	AuthorizedEmails []string `mapstructure:"authorized_emails"`

	// ID Slack-группы апруверов для упоминания <!subteam^ID>.
	ApproverGroupID string `mapstructure:"approver_group_id"`
}

// AdminConfig защищает служебные эндпоинты (/api/v1/approvals).
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// IntegrationsConfig собирает креды всех вендорских интеграций.
// Интеграция активна, если заполнены ее обязательные поля.
type IntegrationsConfig struct {
	Salesforce SalesforceConfig `mapstructure:"salesforce"`
	HubSpot    HubSpotConfig    `mapstructure:"hubspot"`
	Linear     LinearConfig     `mapstructure:"linear"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Marketo    MarketoConfig    `mapstructure:"marketo"`
}

// SalesforceConfig — OAuth JWT-bearer flow (RS256) + instance URL.
type SalesforceConfig struct {
	InstanceURL    string `mapstructure:"instance_url"`
	LoginURL       string `mapstructure:"login_url"`
	ClientID       string `mapstructure:"client_id"`
	Username       string `mapstructure:"username"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	PrivateKey     []byte // Заполняется в LoadConfig
}

type HubSpotConfig struct {
	AccessToken string `mapstructure:"access_token"`
}

type LinearConfig struct {
	APIKey   string `mapstructure:"api_key"`
	TeamKey  string `mapstructure:"team_key"`
	Endpoint string `mapstructure:"endpoint"`
}

type GitHubConfig struct {
	Token string `mapstructure:"token"`
	Repo  string `mapstructure:"repo"` // owner/name
}

type MarketoConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// Enabled сообщает, активна ли интеграция Salesforce.
func (c SalesforceConfig) Enabled() bool {
	return c.InstanceURL != "" && c.ClientID != "" && c.Username != ""
}

func (c HubSpotConfig) Enabled() bool { return c.AccessToken != "" }
func (c LinearConfig) Enabled() bool  { return c.APIKey != "" }
func (c GitHubConfig) Enabled() bool  { return c.Token != "" && c.Repo != "" }
func (c MarketoConfig) Enabled() bool {
	return c.BaseURL != "" && c.ClientID != "" && c.ClientSecret != ""
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SLACK_BOT_TOKEN перекроет slack.bot_token
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка RSA-ключа Salesforce из файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	cfg.Integrations.Salesforce.PrivateKey = loadKeyResource(
		cfg.Integrations.Salesforce.PrivateKeyPath, "SALESFORCE_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("audit.buffer_size", 10000)
	v.SetDefault("audit.flush_interval", 500*time.Millisecond)
	v.SetDefault("approval.ttl", 30*time.Minute)
	v.SetDefault("approval.authorized_bulk_limit", 1500)
	v.SetDefault("approval.bulk_limit", 500)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.max_steps", 10)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("slack.bot_name", "mOperator")
	v.SetDefault("integrations.salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("integrations.linear.team_key", "ENG")
	v.SetDefault("integrations.linear.endpoint", "https://api.linear.app/graphql")
}

// loadKeyResource — универсальный хелпер для секретов: ENV или файл.
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
