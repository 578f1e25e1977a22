package config

import "time"

type RedisConfig struct {
	DB         int
	Url        string
	Password   string
	PayloadTTL time.Duration
}

func NewRedisConfig() *RedisConfig {
	return &RedisConfig{
		DB:         getIntEnv("REDIS_DB", 0),
		Url:        getEnv("REDIS_ADDR", ""),
		Password:   getEnv("REDIS_PASSWORD", ""),
		PayloadTTL: getSecondsEnv("REDIS_PAYLOAD_TTL_SEC", time.Hour),
	}
}
