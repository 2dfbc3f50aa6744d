package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/hszk-dev/emoteclip/internal/transcoder"
)

type Config struct {
	Server    ServerConfig
	Worker    WorkerConfig
	Database  DatabaseConfig
	MinIO     MinIOConfig
	RabbitMQ  RabbitMQConfig
	Redis     RedisConfig
	FFmpeg    FFmpegConfig
	SevenTV   SevenTVConfig
	Search    SearchConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port        int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	// WriteTimeout must cover a full streaming conversion.
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	// ConvertTimeout bounds one streaming conversion end to end.
	ConvertTimeout time.Duration `envconfig:"API_CONVERT_TIMEOUT" default:"45s"`
	PresignExpiry  time.Duration `envconfig:"API_PRESIGN_EXPIRY" default:"15m"`
}

type WorkerConfig struct {
	TempDir         string        `envconfig:"WORKER_TEMP_DIR" default:"/tmp/emoteclip"`
	MaxRetries      int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	TaskTimeout     time.Duration `envconfig:"WORKER_TASK_TIMEOUT" default:"2m"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	MetricsPort     int           `envconfig:"WORKER_METRICS_PORT" default:"9091"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"emoteclip"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"emoteclip"`
	DBName   string `envconfig:"POSTGRES_DB" default:"emoteclip"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	Migrate  bool   `envconfig:"POSTGRES_MIGRATE" default:"true"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Endpoint       string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	PublicEndpoint string `envconfig:"MINIO_PUBLIC_ENDPOINT"`
	AccessKey      string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"MINIO_BUCKET" default:"clips"`
	UseSSL         bool   `envconfig:"MINIO_USE_SSL" default:"false"`
	CreateBucket   bool   `envconfig:"MINIO_CREATE_BUCKET" default:"true"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"emoteclip"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"emoteclip"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	// ConversionTTL applies to cached conversion records.
	ConversionTTL time.Duration `envconfig:"REDIS_CONVERSION_TTL" default:"5m"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type FFmpegConfig struct {
	FFmpegPath     string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath    string        `envconfig:"FFPROBE_PATH" default:"ffprobe"`
	VideoCodec     string        `envconfig:"FFMPEG_VIDEO_CODEC" default:"libvpx-vp9"`
	PixelFormat    string        `envconfig:"FFMPEG_PIXEL_FORMAT" default:"yuva420p"`
	CRF            int           `envconfig:"FFMPEG_CRF" default:"32"`
	ChunkSize      int           `envconfig:"FFMPEG_CHUNK_SIZE" default:"8192"`
	WaitDelay      time.Duration `envconfig:"FFMPEG_WAIT_DELAY" default:"5s"`
	MaxStderrBytes int           `envconfig:"FFMPEG_MAX_STDERR_BYTES" default:"65536"`
}

// Transcoder returns the transcoder settings for these values.
func (c FFmpegConfig) Transcoder() transcoder.FFmpegConfig {
	return transcoder.FFmpegConfig{
		FFmpegPath:     c.FFmpegPath,
		FFprobePath:    c.FFprobePath,
		VideoCodec:     c.VideoCodec,
		PixelFormat:    c.PixelFormat,
		CRF:            c.CRF,
		ChunkSize:      c.ChunkSize,
		WaitDelay:      c.WaitDelay,
		MaxStderrBytes: c.MaxStderrBytes,
	}
}

type SevenTVConfig struct {
	GQLURL       string        `envconfig:"SEVENTV_GQL_URL" default:"https://api.7tv.app/v4/gql"`
	AllowedHosts []string      `envconfig:"SEVENTV_ALLOWED_HOSTS" default:"7tv.app,7tvcdn.net"`
	Timeout      time.Duration `envconfig:"SEVENTV_TIMEOUT" default:"15s"`
	MaxDownload  int64         `envconfig:"SEVENTV_MAX_DOWNLOAD_BYTES" default:"33554432"`
}

type SearchConfig struct {
	CacheTTL    time.Duration `envconfig:"SEARCH_CACHE_TTL" default:"2m"`
	TrendingTTL time.Duration `envconfig:"SEARCH_TRENDING_TTL" default:"10m"`
}

type RateLimitConfig struct {
	// ConvertPerMinute caps conversion requests per client IP; 0 disables the limit.
	ConvertPerMinute int `envconfig:"RATE_LIMIT_CONVERT_PER_MINUTE" default:"30"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
