package stats

import "time"

// Collector is the C11 statistics component: it owns the three keyed
// counter families and mirrors every recording into the Prometheus
// metrics alongside them. A nil *Metrics is accepted so packages can be
// wired up before a registry exists, the same defensive-nil convention
// C5/C6/C8's Metrics callers use.
type Collector struct {
	endpoints *counterFamily
	queries   *counterFamily
	databases *counterFamily
	metrics   *Metrics
}

func NewCollector(metrics *Metrics) *Collector {
	return &Collector{
		endpoints: newCounterFamily(),
		queries:   newCounterFamily(),
		databases: newCounterFamily(),
		metrics:   metrics,
	}
}

// RecordEndpoint satisfies internal/dispatch.StatsRecorder.
func (c *Collector) RecordEndpoint(name string, elapsed time.Duration, success bool) {
	c.endpoints.get(name).record(elapsed, success)
	if c.metrics != nil {
		c.metrics.EndpointCalls.WithLabelValues(name, outcome(success)).Inc()
		c.metrics.EndpointDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

// RecordQuery tracks one query execution, its row count, and its
// database usage breakdown.
func (c *Collector) RecordQuery(name, database string, elapsed time.Duration, rows int, success bool) {
	ctr := c.queries.get(name)
	ctr.record(elapsed, success)
	ctr.addRows(int64(rows))
	ctr.recordDatabaseUsage(database)
	if c.metrics != nil {
		c.metrics.QueryCalls.WithLabelValues(name, database, outcome(success)).Inc()
		c.metrics.QueryRows.WithLabelValues(name).Add(float64(rows))
	}
}

// RecordDatabase tracks one connection acquisition against a database.
func (c *Collector) RecordDatabase(name string, elapsed time.Duration, success bool) {
	c.databases.get(name).record(elapsed, success)
	if c.metrics != nil {
		c.metrics.DatabaseCalls.WithLabelValues(name, outcome(success)).Inc()
	}
}

func (c *Collector) EndpointSnapshot(name string) Snapshot { return c.endpoints.get(name).snapshot(name) }
func (c *Collector) QuerySnapshot(name string) Snapshot    { return c.queries.get(name).snapshot(name) }
func (c *Collector) DatabaseSnapshot(name string) Snapshot { return c.databases.get(name).snapshot(name) }

func (c *Collector) AllEndpoints() map[string]Snapshot { return c.endpoints.snapshotAll() }
func (c *Collector) AllQueries() map[string]Snapshot   { return c.queries.snapshotAll() }
func (c *Collector) AllDatabases() map[string]Snapshot { return c.databases.snapshotAll() }
