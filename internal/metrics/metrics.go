// Package metrics declares the prometheus collectors of the record store and
// query engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for query outcome labels.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Collectors for store.Store and query.Engine metrics.
var (
	PartitionsReadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultorm_partitions_read_total",
		Help: "Cumulative number of partitions read and decoded.",
	}, []string{"model"})
	PartitionsWrittenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultorm_partitions_written_total",
		Help: "Cumulative number of partitions encrypted and written.",
	}, []string{"model"})
	PartitionCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultorm_partition_cache_hits_total",
		Help: "Cumulative number of partition reads served from the decoded-partition cache.",
	}, []string{"model"})
	CorruptPartitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultorm_corrupt_partitions_total",
		Help: "Cumulative number of partitions that failed to decrypt or parse.",
	}, []string{"model"})
	RecordsAppendedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultorm_records_appended_total",
		Help: "Cumulative number of records appended.",
	}, []string{"model"})
	RecordsDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultorm_records_deleted_total",
		Help: "Cumulative number of records removed by delete.",
	}, []string{"model"})
	IndexHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultorm_index_hits_total",
		Help: "Cumulative number of partitions whose candidates came from the secondary index.",
	}, []string{"model"})
	QueryDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultorm_query_duration_seconds",
		Help:    "Duration of query materialization.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"model", "status"})
)

// Collectors returns every collector of this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		PartitionsReadTotal,
		PartitionsWrittenTotal,
		PartitionCacheHitsTotal,
		CorruptPartitionsTotal,
		RecordsAppendedTotal,
		RecordsDeletedTotal,
		IndexHitsTotal,
		QueryDurationSeconds,
	}
}

// Register attaches every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
