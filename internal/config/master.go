package config

import "os"

type AppConfig struct {
	DebugMode      bool
	Executor       *ExecutorConfig
	Client         *ClientConfig
	HTTP           *HTTPConfig
	RedisConfig    *RedisConfig
	PostgresConfig *PostgresConfig
	JwtConfig      *JwtConfig
	Log            *LogConfig
	Tracing        *TracingConfig
}

func NewSystemConfig() *AppConfig {
	return &AppConfig{
		DebugMode:      os.Getenv("DEBUG_MODE") == "true",
		Executor:       NewExecutorConfig(),
		Client:         NewClientConfig(),
		HTTP:           NewHTTPConfig(),
		RedisConfig:    NewRedisConfig(),
		PostgresConfig: NewPostgresConfig(),
		JwtConfig:      NewJwtConfig(),
		Log:            NewLogConfig(),
		Tracing:        NewTracingConfig(),
	}
}
