package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию сервиса иллюстраций.
type Config struct {
	// Настройки сервера
	Port     string `envconfig:"SERVER_PORT" default:"8084"`
	BasePath string `envconfig:"SERVER_BASE_PATH" default:"/api"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBPassword    string        `envconfig:"DB_PASSWORD" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_TIME" default:"5m"`
	MigrationsDir string        `envconfig:"MIGRATIONS_DIR" default:"migrations"`

	// Настройки JWT (проверка токена пользователя в middleware)
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Настройки CORS
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Хранилище изображений (GCS)
	StorageBucket          string `envconfig:"IMAGE_BUCKET_NAME"`
	StorageCDNDomain       string `envconfig:"IMAGE_CDN_DOMAIN"`
	StoragePrefix          string `envconfig:"IMAGE_PATH_PREFIX" default:"illustrations"`
	StorageCredentialsFile string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS_JSON"`

	// Провайдеры генерации изображений
	OpenAIAPIKey     string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `envconfig:"OPENAI_BASE_URL"`
	DiffusionBaseURL string        `envconfig:"DIFFUSION_API_BASE_URL"`
	DiffusionAPIKey  string        `envconfig:"DIFFUSION_API_KEY"`
	ProviderTimeout  time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"90s"`

	// Vision-провайдер (опциональный, для описаний референсов и пост-валидации)
	VisionEnabled     bool   `envconfig:"VISION_ENABLED" default:"false"`
	VisionModel       string `envconfig:"VISION_MODEL" default:"gpt-4o-mini"`
	CritiqueThreshold int    `envconfig:"CRITIQUE_THRESHOLD" default:"50"`

	// Бюджет времени пайплайна. После исчерпания опциональные стадии пропускаются,
	// а запас на выгрузку и финализацию резервируется заранее.
	PipelineDeadline time.Duration `envconfig:"PIPELINE_DEADLINE" default:"150s"`
	FinalizeMargin   time.Duration `envconfig:"PIPELINE_FINALIZE_MARGIN" default:"15s"`

	// Стоимость одной генерации в кредитах
	GenerationCost int64 `envconfig:"GENERATION_COST" default:"1"`

	// Кэши (референсные изображения и vision-описания)
	CacheCapacity int           `envconfig:"CACHE_CAPACITY" default:"128"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"30m"`

	// RabbitMQ (опционально; пустой URL отключает публикацию событий)
	RabbitMQURL           string `envconfig:"RABBITMQ_URL"`
	GenerationEventsQueue string `envconfig:"GENERATION_EVENTS_QUEUE" default:"illustration_events"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig загружает конфигурацию из переменных окружения.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации illustrator-server: %w", err)
	}
	return &cfg, nil
}
