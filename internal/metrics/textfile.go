// Package metrics writes a run summary for the node_exporter textfile
// collector.
package metrics

import (
	"sort"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tastythames/host-backup/internal/results"
)

func gaugeVec(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{"host"})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Registry builds a registry holding the gauges for snap.
func Registry(snap map[string]results.Result) (*prometheus.Registry, error) {
	success := gaugeVec(MetricSuccess, "1 if the last backup run of the host succeeded.")
	duration := gaugeVec(MetricDuration, "Duration of the last backup run.")
	ts := gaugeVec(MetricTimestamp, "Unix timestamp of the start of the last backup run.")
	paths := gaugeVec(MetricPaths, "Remote paths configured for the host.")
	failedPaths := gaugeVec(MetricFailedPaths, "Remote paths that failed on every attempt.")
	drifted := gaugeVec(MetricConfigDrifted, "1 if the host config changed since the previous run.")
	hosts := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: MetricHosts, Help: "Hosts in the config store.",
	})
	failedHosts := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: MetricFailedHosts, Help: "Hosts whose last run failed.",
	})

	reg := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{success, duration, ts, paths, failedPaths, drifted, hosts, failedHosts} {
		if err := reg.Register(col); err != nil {
			return nil, errors.Trace(err)
		}
	}

	names := make([]string, 0, len(snap))
	for h := range snap {
		names = append(names, h)
	}
	sort.Strings(names)

	failed := 0
	for _, h := range names {
		r := snap[h]
		if r.Failed {
			failed++
		}
		success.WithLabelValues(h).Set(boolValue(!r.Failed))
		duration.WithLabelValues(h).Set(r.Duration.Seconds())
		ts.WithLabelValues(h).Set(float64(r.At.Unix()))
		paths.WithLabelValues(h).Set(float64(r.Paths))
		failedPaths.WithLabelValues(h).Set(float64(r.FailedPaths))
		drifted.WithLabelValues(h).Set(boolValue(r.Drifted))
	}
	hosts.Set(float64(len(names)))
	failedHosts.Set(float64(failed))
	return reg, nil
}

// WriteTextfile writes the gauges for snap to filename atomically.
func WriteTextfile(filename string, snap map[string]results.Result) error {
	reg, err := Registry(snap)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotate(prometheus.WriteToTextfile(filename, reg), "write metrics textfile")
}
