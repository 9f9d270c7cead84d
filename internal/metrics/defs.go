package metrics

const (
	namespace = "host_backup"

	// per host, last run
	MetricSuccess       = "last_run_success"
	MetricDuration      = "last_run_duration_seconds"
	MetricTimestamp     = "last_run_timestamp_seconds"
	MetricPaths         = "last_run_paths"
	MetricFailedPaths   = "last_run_failed_paths"
	MetricConfigDrifted = "last_run_config_drifted"

	// fleet
	MetricHosts       = "hosts"
	MetricFailedHosts = "failed_hosts"
)
