package config

import "time"

type ExecutorConfig struct {
	Address            string
	AppName            string
	MaxConcurrentJobs  int
	DefaultParallelism int
	StageDelay         time.Duration
	ShutdownTimeout    time.Duration
}

func NewExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		Address:            getEnv("EXECUTOR_ADDR", ":9000"),
		AppName:            getEnv("EXECUTOR_APP_NAME", "hive-on-spark"),
		MaxConcurrentJobs:  getIntEnv("EXECUTOR_MAX_CONCURRENT_JOBS", 8),
		DefaultParallelism: getIntEnv("EXECUTOR_DEFAULT_PARALLELISM", 4),
		StageDelay:         getMillisEnv("DRIVER_STAGE_DELAY_MS", 0),
		ShutdownTimeout:    getSecondsEnv("EXECUTOR_SHUTDOWN_TIMEOUT_SEC", 10*time.Second),
	}
}
