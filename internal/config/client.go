package config

import "time"

type ClientConfig struct {
	ExecutorAddress     string
	DialTimeout         time.Duration
	AwaitTimeout        time.Duration
	PayloadRefThreshold int
	HandleRetention     time.Duration
	SweepInterval       time.Duration
}

func NewClientConfig() *ClientConfig {
	return &ClientConfig{
		ExecutorAddress:     getEnv("EXECUTOR_ADDR", "localhost:9000"),
		DialTimeout:         getSecondsEnv("CLIENT_DIAL_TIMEOUT_SEC", 10*time.Second),
		AwaitTimeout:        getSecondsEnv("CLIENT_AWAIT_TIMEOUT_SEC", 60*time.Second),
		PayloadRefThreshold: getIntEnv("CLIENT_PAYLOAD_REF_THRESHOLD", 0),
		HandleRetention:     getSecondsEnv("CLIENT_HANDLE_RETENTION_SEC", 10*time.Minute),
		SweepInterval:       getSecondsEnv("CLIENT_SWEEP_INTERVAL_SEC", 30*time.Second),
	}
}
