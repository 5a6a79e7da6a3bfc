package jobs

import (
	jobmetrics "github.com/saftbridge/saftbridge/internal/jobs"
)

// QueueDefault is the default queue name for background jobs.
const QueueDefault = "default"

var defaultJobMetrics = jobmetrics.NewMetrics(nil)
