package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordEndpointAccumulatesCallsAndOutcomes(t *testing.T) {
	c := NewCollector(nil)
	c.RecordEndpoint("GET /api/users", 10*time.Millisecond, true)
	c.RecordEndpoint("GET /api/users", 20*time.Millisecond, false)

	snap := c.EndpointSnapshot("GET /api/users")
	assert.Equal(t, int64(2), snap.Calls)
	assert.Equal(t, int64(1), snap.Successes)
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, int64(10*time.Millisecond), snap.MinElapsed)
	assert.Equal(t, int64(20*time.Millisecond), snap.MaxElapsed)
	assert.Equal(t, int64(30*time.Millisecond), snap.TotalElapsed)
	assert.False(t, snap.FirstCall.IsZero())
	assert.False(t, snap.LastCall.IsZero())
}

func TestRecordQueryTracksRowsAndPerDatabaseUsage(t *testing.T) {
	c := NewCollector(nil)
	c.RecordQuery("listUsers", "db1", 5*time.Millisecond, 3, true)
	c.RecordQuery("listUsers", "db1", 5*time.Millisecond, 2, true)
	c.RecordQuery("listUsers", "db2", 5*time.Millisecond, 1, true)

	snap := c.QuerySnapshot("listUsers")
	assert.Equal(t, int64(3), snap.Calls)
	assert.Equal(t, int64(6), snap.RowsReturned)
	assert.Equal(t, int64(2), snap.PerDatabase["db1"])
	assert.Equal(t, int64(1), snap.PerDatabase["db2"])
}

func TestRecordDatabaseTracksConnectionOutcomes(t *testing.T) {
	c := NewCollector(nil)
	c.RecordDatabase("db1", time.Millisecond, true)
	c.RecordDatabase("db1", time.Millisecond, false)

	snap := c.DatabaseSnapshot("db1")
	assert.Equal(t, int64(2), snap.Calls)
	assert.Equal(t, int64(1), snap.Successes)
	assert.Equal(t, int64(1), snap.Failures)
}

func TestSnapshotUnvisitedKeyHasZeroMinElapsed(t *testing.T) {
	c := NewCollector(nil)
	snap := c.EndpointSnapshot("never-called")
	assert.Equal(t, int64(0), snap.Calls)
	assert.Equal(t, int64(0), snap.MinElapsed)
}

func TestAllEndpointsReturnsEverySeenKey(t *testing.T) {
	c := NewCollector(nil)
	c.RecordEndpoint("a", time.Millisecond, true)
	c.RecordEndpoint("b", time.Millisecond, true)

	all := c.AllEndpoints()
	assert.Len(t, all, 2)
	assert.Contains(t, all, "a")
	assert.Contains(t, all, "b")
}

func TestCasMinAndMaxConverge(t *testing.T) {
	c := NewCollector(nil)
	for _, v := range []time.Duration{50 * time.Millisecond, 5 * time.Millisecond, 100 * time.Millisecond, 1 * time.Millisecond} {
		c.RecordEndpoint("race", v, true)
	}
	snap := c.EndpointSnapshot("race")
	assert.Equal(t, int64(1*time.Millisecond), snap.MinElapsed)
	assert.Equal(t, int64(100*time.Millisecond), snap.MaxElapsed)
}
