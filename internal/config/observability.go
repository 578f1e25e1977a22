package config

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func NewLogConfig() *LogConfig {
	return &LogConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  getIntEnv("LOG_MAX_SIZE_MB", 100),
		MaxBackups: getIntEnv("LOG_MAX_BACKUPS", 3),
		MaxAgeDays: getIntEnv("LOG_MAX_AGE_DAYS", 7),
	}
}

type TracingConfig struct {
	Exporter string
}

func NewTracingConfig() *TracingConfig {
	return &TracingConfig{
		Exporter: getEnv("OTEL_EXPORTER", "none"),
	}
}

type HTTPConfig struct {
	Port int
}

func NewHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Port: getIntEnv("HTTP_PORT", 8082),
	}
}
