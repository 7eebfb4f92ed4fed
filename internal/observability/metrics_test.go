package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type metricsProbe struct {
	ID   uint
	Name string
}

func TestInstrumentDB_ObservesQueries(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, InstrumentDB(db))
	require.NoError(t, db.AutoMigrate(&metricsProbe{}))

	before := testutil.CollectAndCount(DatabaseQueryLatency)
	require.NoError(t, db.Create(&metricsProbe{Name: "a"}).Error)
	var got metricsProbe
	require.NoError(t, db.First(&got).Error)

	assert.Greater(t, testutil.CollectAndCount(DatabaseQueryLatency), before)
}

func TestCountersAreRegistered(t *testing.T) {
	PostTransitions.WithLabelValues("approve").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(PostTransitions.WithLabelValues("approve")), 1.0)
}
