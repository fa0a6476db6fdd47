package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paimon_commits_total",
		Help: "Total number of table commits by result.",
	}, []string{"table", "result"})

	CommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paimon_commit_duration_seconds",
		Help:    "Duration of the manifest, manifest list and snapshot commit steps.",
		Buckets: prometheus.DefBuckets,
	})

	RecordsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paimon_records_committed_total",
		Help: "Total number of rows made visible by commits.",
	}, []string{"table"})

	DataFilesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paimon_data_files_written_total",
		Help: "Total number of data files written.",
	}, []string{"table"})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paimon_resolve_duration_seconds",
		Help:    "Duration of snapshot resolution.",
		Buckets: prometheus.DefBuckets,
	})

	FilesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paimon_scan_files_total",
		Help: "Total number of data files considered by scans.",
	})

	FilesPruned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paimon_scan_files_pruned_total",
		Help: "Total number of data files or manifests skipped by pruning stage.",
	}, []string{"stage"})

	ReplicationMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paimon_replication_messages_total",
		Help: "Total number of logical replication messages handled by kind.",
	}, []string{"kind"})

	ProxyQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paimon_proxy_queries_total",
		Help: "Total number of proxied queries by result.",
	}, []string{"result"})
)
