package domain

// MetricBucket is the severity an API call is counted under.
type MetricBucket string

// Metric buckets.
const (
	BucketSuccess MetricBucket = "success"
	BucketWarning MetricBucket = "warning"
	BucketError   MetricBucket = "error"
)

// MetricBucketForStatus classifies an HTTP status code: [200,400) is success,
// [400,500) is warning, anything else is error.
func MetricBucketForStatus(code int) MetricBucket {
	switch {
	case code >= 200 && code < 400:
		return BucketSuccess
	case code >= 400 && code < 500:
		return BucketWarning
	default:
		return BucketError
	}
}

// StatsRecorder receives one call per API request once the handler has
// written its status.
type StatsRecorder interface {
	IncrStats(bucket MetricBucket, funcName string)
}
