package domain

import "time"

// Local property keys read by cluster monitoring under fixed names
const (
	JobDescriptionKey       = "spark.job.description"
	JobGroupIDKey           = "spark.jobGroup.id"
	JobInterruptOnCancelKey = "spark.job.interruptOnCancel"
)

const groupIDPrefix = "queryId = "

// TrackingTag is the (description, group id) pair attached to driver work
type TrackingTag struct {
	Description string `json:"description"`
	GroupID     string `json:"groupId"`
}

// NewTrackingTag derives the tag of a status job from its inputs. The group
// id embeds the query id of the work (or the conf), the description is the
// job name truncated to hive.jobname.length runes.
func NewTrackingTag(conf JobConf, work *SparkWork) TrackingTag {
	queryID := ""
	name := ""
	if work != nil {
		queryID = work.QueryID
		name = work.Name
	}
	if queryID == "" {
		queryID = conf.Get(QueryIDKey)
	}
	if jobName := conf.Get(JobNameKey); jobName != "" {
		name = jobName
	}

	return TrackingTag{
		Description: truncateRunes(name, conf.GetInt(JobNameLengthKey, DefaultJobNameLength)),
		GroupID:     groupIDPrefix + queryID,
	}
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

// TrackingRecord is what the executor publishes for a running invocation
type TrackingRecord struct {
	SubmissionID string      `json:"submissionId"`
	Kind         JobKind     `json:"kind"`
	AppID        string      `json:"appId"`
	Tag          TrackingTag `json:"tag"`
	Status       JobStatus   `json:"status"`
	StartedAt    time.Time   `json:"startedAt"`
}
