package config

import (
	"errors"
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort     string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost     string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName    string `env:"SERVICE_NAME" envDefault:"atlaswd-auth"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"v1"`

	// 上游 Atlas-WD REST 后端
	AtlasAPIBaseURL        string `env:"ATLAS_API_BASE_URL" envDefault:"http://localhost:5000"`
	AtlasAPITimeoutSeconds int    `env:"ATLAS_API_TIMEOUT_SECONDS" envDefault:"10"`
	AtlasAPIMaxFailures    int    `env:"ATLAS_API_MAX_FAILURES" envDefault:"5"`  // 熔断阈值
	AtlasAPIResetSeconds   int    `env:"ATLAS_API_RESET_SECONDS" envDefault:"30"` // 熔断恢复时间

	// PostgreSQL 配置，仅 worker 使用
	PostgreSQLHost       string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort       string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser       string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword   string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase   string `env:"POSTGRESQL_DATABASE" envDefault:"atlaswd"`
	PostgreSQLSchema     string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode    string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle    int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"10"`
	PostgreSQLMaxOpen    int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"50"`
	PostgreSQLReplicaDSN string `env:"POSTGRESQL_REPLICA_DSN" envDefault:""` // 只读副本，可选

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"atlas"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置，BFF 自己签发给前端的会话 token
	JWTSecret        string `env:"JWT_SECRET"` // 必填
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// Cookie session / CSRF
	SessionSecret string `env:"SESSION_SECRET"` // 必填
	SessionName   string `env:"SESSION_NAME" envDefault:"atlas_session"`
	CSRFEnabled   bool   `env:"CSRF_ENABLED" envDefault:"true"`
	CSRFSecret    string `env:"CSRF_SECRET" envDefault:""`

	// 认证流程配置
	FlowTTLMinutes           int `env:"FLOW_TTL_MINUTES" envDefault:"30"`
	ReferralTTLDays          int `env:"REFERRAL_TTL_DAYS" envDefault:"30"`
	OTPResendCooldownSeconds int `env:"OTP_RESEND_COOLDOWN_SECONDS" envDefault:"60"`
	OTPMaxDaily              int `env:"OTP_MAX_DAILY" envDefault:"10"`
	OTPSliderThreshold       int `env:"OTP_SLIDER_THRESHOLD" envDefault:"3"` // 超过此次数需要滑块验证

	// 滑块验证
	CaptchaProvider string `env:"CAPTCHA_PROVIDER" envDefault:"none"` // aliyun, none
	CaptchaSceneID  string `env:"CAPTCHA_SCENE_ID" envDefault:""`
	CaptchaEndpoint string `env:"CAPTCHA_ENDPOINT" envDefault:"captcha.cn-hangzhou.aliyuncs.com"`

	// 短信服务配置（注册成功后的欢迎短信）
	// AccessKey 通过阿里云 SDK 的环境变量自动获取：ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET
	SMSProvider            string `env:"SMS_PROVIDER" envDefault:"none"` // aliyun, none
	SMSSignName            string `env:"SMS_SIGN_NAME"`
	SMSWelcomeTemplateCode string `env:"SMS_WELCOME_TEMPLATE_CODE"`

	// 邮箱哈希盐，用于 redis key 与事件中的 email_hash
	EmailHashSalt string `env:"EMAIL_HASH_SALT" envDefault:""`

	// 上游 token 在 redis 中加密存储，AES 密钥长度 16/24/32
	EncryptionKey string `env:"ENCRYPTION_KEY"` // 必填

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 速率限制配置
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`

	// 允许携带 cookie 跨域访问的前端来源，逗号分隔；为空时回显请求来源（仅开发环境）
	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:""`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}
}

// Validate 检查必填配置，由 cmd 下的入口调用
func Validate() error {
	if Cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	if Cfg.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}

	switch len(Cfg.EncryptionKey) {
	case 16, 24, 32:
	default:
		return errors.New("ENCRYPTION_KEY must be 16, 24 or 32 bytes")
	}

	if Cfg.AtlasAPIBaseURL == "" {
		return errors.New("ATLAS_API_BASE_URL is required")
	}

	if Cfg.EmailHashSalt == "" {
		log.Printf("WARN: EMAIL_HASH_SALT is not set, email hashes are unsalted")
	}

	if Cfg.CaptchaProvider == "aliyun" && Cfg.CaptchaSceneID == "" {
		log.Printf("WARN: CAPTCHA_SCENE_ID is not set, slider verification will reject every request")
	}

	if Cfg.SMSProvider == "aliyun" && (Cfg.SMSSignName == "" || Cfg.SMSWelcomeTemplateCode == "") {
		log.Printf("WARN: SMS_SIGN_NAME or SMS_WELCOME_TEMPLATE_CODE is not set, welcome SMS will not be sent")
	}

	return nil
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
