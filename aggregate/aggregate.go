// Package aggregate buckets a chronologically sorted sequence of readings
// into fixed-size time intervals and computes per-field min/mean/max/count
// statistics for each bucket.
package aggregate

import (
	"time"

	"github.com/mklimuk/sensord/record"
)

// FieldStats holds the aggregated statistics for one field within a bucket.
// Min/Mean/Max are nil when the bucket has zero observations for the field
// (serialized as null; Count serializes as 0 regardless).
type FieldStats struct {
	Min   *float32
	Mean  *float32
	Max   *float32
	Count int
}

func (f *FieldStats) observe(v float32) {
	f.Count++
	if f.Min == nil || v < *f.Min {
		m := v
		f.Min = &m
	}
	if f.Max == nil || v > *f.Max {
		m := v
		f.Max = &m
	}
	if f.Mean == nil {
		m := v
		f.Mean = &m
	} else {
		// running mean: mean_n = mean_(n-1) + (v - mean_(n-1)) / n
		newMean := *f.Mean + (v-*f.Mean)/float32(f.Count)
		f.Mean = &newMean
	}
}

// Bucket is the aggregation result for one interval.
type Bucket struct {
	Start       time.Time
	CO2         FieldStats
	Temperature FieldStats
	Humidity    FieldStats
}

// Buckets computes bucket_i_start = start + i*interval for
// i = 0 .. ceil((end-start)/interval)-1, assigning each reading in readings
// (assumed sorted by timestamp) to the bucket covering its timestamp.
// Readings outside [start, end) are ignored. Output order matches bucket
// chronology.
func Buckets(readings []record.Reading, start, end time.Time, interval time.Duration) []Bucket {
	if interval <= 0 || !end.After(start) {
		return nil
	}

	n := int((end.Sub(start) + interval - 1) / interval)
	if n <= 0 {
		return nil
	}

	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].Start = start.Add(time.Duration(i) * interval)
	}

	for _, r := range readings {
		if r.Timestamp.Before(start) || !r.Timestamp.Before(end) {
			continue
		}
		idx := int(r.Timestamp.Sub(start) / interval)
		if idx < 0 || idx >= n {
			continue
		}
		b := &buckets[idx]
		if r.CO2PPM != nil {
			b.CO2.observe(*r.CO2PPM)
		}
		if r.TempC != nil {
			b.Temperature.observe(*r.TempC)
		}
		if r.HumidityPct != nil {
			b.Humidity.observe(*r.HumidityPct)
		}
	}

	return buckets
}
