package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensord/record"
)

func co2At(ts time.Time, ppm float32) record.Reading {
	v := ppm
	return record.Reading{Timestamp: ts, CO2PPM: &v}
}

func TestBucketsAssignsByInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	readings := []record.Reading{
		co2At(start.Add(10*time.Minute), 400),
		co2At(start.Add(20*time.Minute), 420),
		co2At(start.Add(70*time.Minute), 500),
	}

	buckets := Buckets(readings, start, end, time.Hour)
	require.Len(t, buckets, 2)

	assert.Equal(t, 2, buckets[0].CO2.Count)
	assert.InDelta(t, 400, *buckets[0].CO2.Min, 0.001)
	assert.InDelta(t, 420, *buckets[0].CO2.Max, 0.001)
	assert.InDelta(t, 410, *buckets[0].CO2.Mean, 0.001)

	assert.Equal(t, 1, buckets[1].CO2.Count)
	assert.InDelta(t, 500, *buckets[1].CO2.Mean, 0.001)
}

func TestEmptyBucketHasNilStatsAndZeroCount(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	buckets := Buckets(nil, start, end, time.Hour)
	require.Len(t, buckets, 2)
	for _, b := range buckets {
		assert.Nil(t, b.CO2.Min)
		assert.Nil(t, b.CO2.Mean)
		assert.Nil(t, b.CO2.Max)
		assert.Equal(t, 0, b.CO2.Count)
	}
}

func TestAbsentFieldsExcludedFromStats(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tempOnly := float32(22.5)
	readings := []record.Reading{
		{Timestamp: start.Add(time.Minute), TempC: &tempOnly},
	}

	buckets := Buckets(readings, start, end, time.Hour)
	require.Len(t, buckets, 1)
	assert.Equal(t, 0, buckets[0].CO2.Count)
	assert.Equal(t, 1, buckets[0].Temperature.Count)
}

func TestBucketsAreOrderStable(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Hour)

	buckets := Buckets(nil, start, end, time.Hour)
	require.Len(t, buckets, 5)
	for i, b := range buckets {
		assert.Equal(t, start.Add(time.Duration(i)*time.Hour), b.Start)
	}
}

func TestReadingsOutsideRangeIgnored(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	readings := []record.Reading{
		co2At(start.Add(-time.Minute), 100),
		co2At(end.Add(time.Minute), 999),
		co2At(start.Add(30*time.Minute), 450),
	}

	buckets := Buckets(readings, start, end, time.Hour)
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].CO2.Count)
	assert.InDelta(t, 450, *buckets[0].CO2.Mean, 0.001)
}
