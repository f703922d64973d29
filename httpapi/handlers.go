package httpapi

import (
	"net/http"
	"time"

	"github.com/mklimuk/sensord/aggregate"
	"github.com/mklimuk/sensord/record"
)

type basicHealthBody struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	timer := s.monitor.Start("health")
	status := s.health.CheckAll(r.Context())
	timer.Stop(false, false)
	writeJSON(w, http.StatusOK, basicHealthBody{Status: status.Overall.String()})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	timer := s.monitor.Start("metrics")
	status := s.health.CheckAll(r.Context())
	timer.Stop(false, false)
	writeJSON(w, http.StatusOK, status.Perf)
}

func (s *Server) handleDiagnostic(w http.ResponseWriter, r *http.Request) {
	timer := s.monitor.Start("diagnostic")
	status := s.health.CheckAll(r.Context())
	cacheStats := s.cache.Stats()
	queryMetrics := s.monitor.Snapshot()
	timer.Stop(false, false)

	writeJSON(w, http.StatusOK, struct {
		Overall      string      `json:"overall_status"`
		Components   interface{} `json:"components"`
		Performance  interface{} `json:"performance"`
		CacheStats   interface{} `json:"cache"`
		QueryMetrics interface{} `json:"query_metrics"`
		Events       interface{} `json:"recent_events"`
	}{
		Overall:      status.Overall.String(),
		Components:   status.ComponentResults,
		Performance:  status.Perf,
		CacheStats:   cacheStats,
		QueryMetrics: queryMetrics,
		Events:       s.health.Events(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.health.CheckAll(r.Context())
	if status.Overall.String() == "HEALTHY" || status.Overall.String() == "WARNING" {
		writeJSON(w, http.StatusOK, basicHealthBody{Status: status.Overall.String()})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, basicHealthBody{Status: status.Overall.String()})
}

func (s *Server) handleAlive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		UptimeSeconds float64 `json:"uptime_seconds"`
	}{UptimeSeconds: time.Since(s.startTime).Seconds()})
}

func (s *Server) handleDataRecent(w http.ResponseWriter, r *http.Request) {
	timer := s.monitor.Start("recent")
	count, err := parseCount(r.URL.Query().Get("count"), 100)
	if err != nil {
		timer.Stop(false, true)
		writeError(w, http.StatusBadRequest, "invalid_count", err.Error(), "pass a positive integer count <= 10000", nil)
		return
	}

	if cached, ok := s.cache.Get(count); ok {
		timer.Stop(true, false)
		writeJSON(w, http.StatusOK, newReadingsResponse(cached))
		return
	}

	readings, err := s.store.GetRecent(r.Context(), count)
	if err != nil {
		timer.Stop(false, true)
		writeError(w, http.StatusInternalServerError, "store_error", err.Error(), "retry later", nil)
		return
	}
	s.cache.Put(count, readings)
	timer.Stop(false, false)
	writeJSON(w, http.StatusOK, newReadingsResponse(readings))
}

func (s *Server) handleDataRange(w http.ResponseWriter, r *http.Request) {
	timer := s.monitor.Start("range")
	q := r.URL.Query()
	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		timer.Stop(false, true)
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error(), "pass start/end as ISO-8601 UTC, e.g. 2026-01-01T00:00:00Z, within 7 days", nil)
		return
	}

	readings, err := s.store.GetRange(r.Context(), start, end, 0)
	if err != nil {
		timer.Stop(false, true)
		writeError(w, http.StatusInternalServerError, "store_error", err.Error(), "retry later", nil)
		return
	}
	timer.Stop(false, false)
	writeJSON(w, http.StatusOK, newReadingsResponse(readings))
}

func (s *Server) handleDataAggregates(w http.ResponseWriter, r *http.Request) {
	timer := s.monitor.Start("aggregates")
	q := r.URL.Query()
	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		timer.Stop(false, true)
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error(), "pass start/end as ISO-8601 UTC within 7 days", nil)
		return
	}
	intervalRaw := q.Get("interval")
	if intervalRaw == "" {
		intervalRaw = "1H"
	}
	interval, err := parseInterval(intervalRaw, start, end)
	if err != nil {
		timer.Stop(false, true)
		writeError(w, http.StatusBadRequest, "invalid_interval", err.Error(), `pass an interval like "15T", "1H", "1D" that divides the range evenly`, nil)
		return
	}

	readings, err := s.store.GetRange(r.Context(), start, end, 0)
	if err != nil {
		timer.Stop(false, true)
		writeError(w, http.StatusInternalServerError, "store_error", err.Error(), "retry later", nil)
		return
	}

	buckets := aggregate.Buckets(readings, start, end, interval)
	timer.Stop(false, false)
	writeJSON(w, http.StatusOK, newAggregatesResponse(buckets, start, end, intervalRaw))
}

func (s *Server) handleDataInfo(w http.ResponseWriter, r *http.Request) {
	timer := s.monitor.Start("info")
	info, err := s.store.Info(r.Context())
	if err != nil {
		timer.Stop(false, true)
		writeError(w, http.StatusInternalServerError, "store_error", err.Error(), "retry later", nil)
		return
	}
	timer.Stop(false, false)
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, struct {
		Error     string   `json:"error"`
		Available []string `json:"available_endpoints"`
	}{
		Error: "not found",
		Available: []string{
			"/health", "/metrics", "/diagnostic", "/ready", "/alive",
			"/data/recent", "/data/range", "/data/aggregates", "/data/info",
		},
	})
}

type readingBody struct {
	Timestamp   time.Time `json:"timestamp"`
	CO2PPM      *float32  `json:"co2_ppm,omitempty"`
	TempC       *float32  `json:"temperature_c,omitempty"`
	HumidityPct *float32  `json:"humidity_percent,omitempty"`
	Quality     uint32    `json:"quality_flags"`
}

// readingsResponse is the data/recent and data/range response envelope from
// spec.md §6: the readings array plus a total_count.
type readingsResponse struct {
	Readings   []readingBody `json:"readings"`
	TotalCount int           `json:"total_count"`
}

func newReadingsResponse(readings []record.Reading) readingsResponse {
	out := make([]readingBody, len(readings))
	for i, r := range readings {
		out[i] = readingBody{
			Timestamp:   r.Timestamp,
			CO2PPM:      r.CO2PPM,
			TempC:       r.TempC,
			HumidityPct: r.HumidityPct,
			Quality:     r.Quality,
		}
	}
	return readingsResponse{Readings: out, TotalCount: len(out)}
}

// bucketBody flattens one aggregate.Bucket's per-field stats to the
// <field>_mean/min/max/count naming spec.md §6 requires (co2_ppm,
// temperature_c, humidity_percent).
type bucketBody struct {
	Timestamp         time.Time `json:"timestamp"`
	CO2PPMMean        *float32  `json:"co2_ppm_mean"`
	CO2PPMMin         *float32  `json:"co2_ppm_min"`
	CO2PPMMax         *float32  `json:"co2_ppm_max"`
	CO2PPMCount       int       `json:"co2_ppm_count"`
	TemperatureCMean  *float32  `json:"temperature_c_mean"`
	TemperatureCMin   *float32  `json:"temperature_c_min"`
	TemperatureCMax   *float32  `json:"temperature_c_max"`
	TemperatureCCount int       `json:"temperature_c_count"`
	HumidityPctMean   *float32  `json:"humidity_percent_mean"`
	HumidityPctMin    *float32  `json:"humidity_percent_min"`
	HumidityPctMax    *float32  `json:"humidity_percent_max"`
	HumidityPctCount  int       `json:"humidity_percent_count"`
}

// aggregatesResponse is the data/aggregates response envelope from spec.md
// §6: the bucket array plus the query's start/end/interval and the bucket
// count.
type aggregatesResponse struct {
	StartTime      time.Time    `json:"start_time"`
	EndTime        time.Time    `json:"end_time"`
	Interval       string       `json:"interval"`
	TotalIntervals int          `json:"total_intervals"`
	Buckets        []bucketBody `json:"buckets"`
}

func newAggregatesResponse(buckets []aggregate.Bucket, start, end time.Time, interval string) aggregatesResponse {
	out := make([]bucketBody, len(buckets))
	for i, b := range buckets {
		out[i] = bucketBody{
			Timestamp:         b.Start,
			CO2PPMMean:        b.CO2.Mean,
			CO2PPMMin:         b.CO2.Min,
			CO2PPMMax:         b.CO2.Max,
			CO2PPMCount:       b.CO2.Count,
			TemperatureCMean:  b.Temperature.Mean,
			TemperatureCMin:   b.Temperature.Min,
			TemperatureCMax:   b.Temperature.Max,
			TemperatureCCount: b.Temperature.Count,
			HumidityPctMean:   b.Humidity.Mean,
			HumidityPctMin:    b.Humidity.Min,
			HumidityPctMax:    b.Humidity.Max,
			HumidityPctCount:  b.Humidity.Count,
		}
	}
	return aggregatesResponse{
		StartTime:      start,
		EndTime:        end,
		Interval:       interval,
		TotalIntervals: len(out),
		Buckets:        out,
	}
}
