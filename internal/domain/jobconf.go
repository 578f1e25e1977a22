package domain

import "strconv"

// Configuration keys read by the job implementations
const (
	JobNameKey       = "mapreduce.job.name"
	QueryIDKey       = "hive.query.id"
	JobNameLengthKey = "hive.jobname.length"

	DefaultJobNameLength = 50
)

// JobConf is the configuration object shipped with every status job
type JobConf map[string]string

// NewJobConf copies the given entries into a fresh configuration
func NewJobConf(entries map[string]string) JobConf {
	conf := make(JobConf, len(entries))
	for k, v := range entries {
		conf[k] = v
	}
	return conf
}

func (c JobConf) Get(key string) string {
	return c[key]
}

func (c JobConf) Set(key, value string) {
	c[key] = value
}

// GetInt returns the integer value of key, or fallback when missing or malformed
func (c JobConf) GetInt(key string, fallback int) int {
	raw, ok := c[key]
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
