package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiReqTotal *Counter
	apiReqError *Counter

	ingestTotal      *CounterVec
	ingestRejected   *CounterVec
	ingestAll        *Counter
	ingestBad        *Counter
	evaluationTotal  *CounterVec
	evaluationTime   *HistogramVec
	evalAll          *Counter
	evalError        *Counter
	insufficientData *Counter
	signalValues     *HistogramVec
	ruleFired        *CounterVec
	reconcileActions *CounterVec
	conflictRetries  *Counter
	conflictFailed   *Counter

	sweepTime   *HistogramVec
	sweepFields *CounterVec

	activityTime *HistogramVec
	workerTotal  *Counter
	workerError  *Counter

	notifyTotal *CounterVec

	advisoriesOpen *GaugeVec
	queueDepth     *GaugeVec
	dbStats        *GaugeVec
	redisUp        *Gauge
	redisPing      *Gauge

	sloCompliance *GaugeVec
	sloBudget     *GaugeVec
	sloBurn       *GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			apiRequests: NewCounterVec("am_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
			apiLatency: NewHistogramVec(
				"am_api_request_duration_seconds",
				"API request latency in seconds by method/route/status.",
				[]string{"method", "route", "status"},
				[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			),
			apiInflight: NewGauge("am_api_inflight_requests", "In-flight API requests."),
			apiReqTotal: NewCounter("am_api_requests_total_all", "Total API requests (all)."),
			apiReqError: NewCounter("am_api_requests_error_total", "Total API requests with 5xx status."),
			ingestTotal: NewCounterVec(
				"am_metric_ingest_total",
				"Satellite metric ingest attempts by outcome.",
				[]string{"outcome"},
			),
			ingestRejected: NewCounterVec(
				"am_metric_ingest_rejected_total",
				"Rejected metric readings by offending attribute.",
				[]string{"attribute"},
			),
			ingestAll: NewCounter("am_metric_ingest_total_all", "Satellite metric ingest attempts (all)."),
			ingestBad: NewCounter("am_metric_ingest_bad_total", "Satellite metric ingest attempts rejected or conflicted."),
			evaluationTotal: NewCounterVec(
				"am_field_evaluations_total",
				"Field advisory evaluations by outcome.",
				[]string{"outcome"},
			),
			evaluationTime: NewHistogramVec(
				"am_field_evaluation_duration_seconds",
				"Field advisory evaluation duration in seconds by outcome.",
				[]string{"outcome"},
				[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			),
			evalAll:          NewCounter("am_field_evaluations_total_all", "Field advisory evaluations (all)."),
			evalError:        NewCounter("am_field_evaluations_error_total", "Field advisory evaluations that failed."),
			insufficientData: NewCounter("am_insufficient_data_evaluations_total", "Evaluations skipped because the metric window was too sparse."),
			signalValues: NewHistogramVec(
				"am_signal_value",
				"Derived signal value distribution by signal name.",
				[]string{"signal"},
				[]float64{-1, -0.5, -0.1, -0.01, 0, 0.01, 0.1, 0.5, 1, 10, 50, 100},
			),
			ruleFired: NewCounterVec(
				"am_rule_outcomes_total",
				"Rule evaluation outcomes by advisory type and result.",
				[]string{"type", "result"},
			),
			reconcileActions: NewCounterVec(
				"am_reconcile_decisions_total",
				"Advisory reconciliation decisions by action.",
				[]string{"action"},
			),
			conflictRetries: NewCounter("am_reconcile_conflict_retries_total", "Reconcile batches retried after an optimistic lock conflict."),
			conflictFailed:  NewCounter("am_reconcile_conflict_failures_total", "Reconcile batches abandoned after exhausting conflict retries."),
			sweepTime: NewHistogramVec(
				"am_sweep_duration_seconds",
				"Full advisory sweep duration in seconds by status.",
				[]string{"status"},
				[]float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			),
			sweepFields: NewCounterVec(
				"am_sweep_fields_total",
				"Fields visited by advisory sweeps, by outcome.",
				[]string{"outcome"},
			),
			activityTime: NewHistogramVec(
				"am_worker_activity_duration_seconds",
				"Worker activity duration in seconds.",
				[]string{"activity", "job_type", "status"},
				[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			),
			workerTotal: NewCounter("am_worker_activity_total", "Total worker activities."),
			workerError: NewCounter("am_worker_activity_error_total", "Total worker activities with failure status."),
			notifyTotal: NewCounterVec(
				"am_advisory_notify_total",
				"Advisory notifications published by event and status.",
				[]string{"event", "status"},
			),
			advisoriesOpen: NewGaugeVec("am_advisories_active", "Active advisories by alert level.", []string{"level"}),
			queueDepth:     NewGaugeVec("am_job_queue_depth", "Job queue depth by status.", []string{"status"}),
			dbStats:        NewGaugeVec("am_db_stats", "Database connection pool stats.", []string{"metric"}),
			redisUp:        NewGauge("am_redis_up", "Redis connectivity (1=up, 0=down)."),
			redisPing:      NewGauge("am_redis_ping_seconds", "Redis ping latency in seconds."),
			sloCompliance:  NewGaugeVec("am_slo_compliance", "SLO compliance (SLI) over window.", []string{"slo", "window"}),
			sloBudget:      NewGaugeVec("am_slo_error_budget_remaining", "Error budget remaining (0-1).", []string{"slo", "window"}),
			sloBurn:        NewGaugeVec("am_slo_burn_rate", "Error budget burn rate.", []string{"slo", "window"}),
		}
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	if err := m.apiRequests.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiLatency.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiInflight.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiReqTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.apiReqError.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.ingestTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.ingestRejected.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.ingestAll.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.ingestBad.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.evaluationTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.evaluationTime.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.evalAll.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.evalError.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.insufficientData.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.signalValues.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.ruleFired.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.reconcileActions.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.conflictRetries.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.conflictFailed.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.sweepTime.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.sweepFields.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.activityTime.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.workerTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.workerError.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.notifyTotal.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.advisoriesOpen.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.queueDepth.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.dbStats.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.redisUp.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.redisPing.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.sloCompliance.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.sloBudget.WritePrometheus(w); err != nil {
		return err
	}
	if err := m.sloBurn.WritePrometheus(w); err != nil {
		return err
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
	m.apiReqTotal.Inc()
	if isServerErrorStatus(status) {
		m.apiReqError.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncIngest(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.ingestTotal.Inc(outcome)
	m.ingestAll.Inc()
	switch outcome {
	case "rejected", "conflict":
		m.ingestBad.Inc()
	}
}

func (m *Metrics) IncIngestRejected(attribute string) {
	if m == nil {
		return
	}
	if attribute == "" {
		attribute = "unknown"
	}
	m.ingestRejected.Inc(attribute)
}

func (m *Metrics) ObserveEvaluation(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.evaluationTotal.Inc(outcome)
	m.evalAll.Inc()
	if dur > 0 {
		m.evaluationTime.Observe(dur.Seconds(), outcome)
	}
	if outcome == "insufficient_data" {
		m.insufficientData.Inc()
	}
	if isFailureStatus(outcome) {
		m.evalError.Inc()
	}
}

func (m *Metrics) ObserveSignal(signal string, value float64) {
	if m == nil {
		return
	}
	if signal == "" {
		signal = "unknown"
	}
	m.signalValues.Observe(value, signal)
}

func (m *Metrics) IncRuleOutcome(advisoryType, result string) {
	if m == nil {
		return
	}
	if advisoryType == "" {
		advisoryType = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	m.ruleFired.Inc(advisoryType, result)
}

func (m *Metrics) IncReconcileDecision(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.reconcileActions.Add(float64(n), action)
}

func (m *Metrics) IncConflictRetry() {
	if m == nil {
		return
	}
	m.conflictRetries.Inc()
}

func (m *Metrics) IncConflictFailed() {
	if m == nil {
		return
	}
	m.conflictFailed.Inc()
}

func (m *Metrics) ObserveSweep(status string, dur time.Duration) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.sweepTime.Observe(dur.Seconds(), status)
}

func (m *Metrics) IncSweepField(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.sweepFields.Inc(outcome)
}

func (m *Metrics) ObserveActivity(activityName, jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if activityName == "" {
		activityName = "unknown"
	}
	if jobType == "" {
		jobType = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.activityTime.Observe(dur.Seconds(), activityName, jobType, status)
	m.workerTotal.Inc()
	if isFailureStatus(status) {
		m.workerError.Inc()
	}
}

func (m *Metrics) IncNotify(event, status string) {
	if m == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.notifyTotal.Inc(event, status)
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.dbStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	statuses := []string{types.JobStatusQueued, types.JobStatusRunning, types.JobStatusSucceeded, types.JobStatusFailed}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range statuses {
					m.queueDepth.Set(0, s)
				}
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Model(&types.JobRun{}).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: job queue depth query failed", "error", err)
					}
					continue
				}
				for _, row := range rows {
					status := strings.TrimSpace(row.Status)
					if status == "" {
						status = "unknown"
					}
					m.queueDepth.Set(float64(row.Count), status)
				}
			}
		}
	}()
}

// StartAdvisoryCollector samples the count of active advisories per alert
// level so dashboards can watch escalations without querying the API.
func (m *Metrics) StartAdvisoryCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	levels := []types.AlertLevel{types.LevelLow, types.LevelMedium, types.LevelHigh, types.LevelCritical}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, l := range levels {
					m.advisoriesOpen.Set(0, string(l))
				}
				var rows []struct {
					AlertLevel string
					Count      int64
				}
				if err := db.WithContext(ctx).
					Model(&types.Advisory{}).
					Select("alert_level, count(*) as count").
					Where("status = ?", types.AdvisoryStatusActive).
					Group("alert_level").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: active advisory query failed", "error", err)
					}
					continue
				}
				for _, row := range rows {
					level := strings.TrimSpace(row.AlertLevel)
					if level == "" {
						level = "unknown"
					}
					m.advisoriesOpen.Set(float64(row.Count), level)
				}
			}
		}
	}()
}

// ---- lightweight metric primitives (Prometheus exposition) ----

type CounterVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (c *CounterVec) Inc(values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl]++
	c.mu.Unlock()
}

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil {
		return
	}
	lbl := labelString(c.labelNames, values)
	c.mu.Lock()
	c.values[lbl] += v
	c.mu.Unlock()
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", c.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type Counter struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val++
	c.mu.Unlock()
}

func (c *Counter) Add(v float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.val += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s counter\n", c.name); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", c.name, c.val)
	return err
}

type Gauge struct {
	name string
	help string
	mu   sync.RWMutex
	val  float64
}

func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val++
	g.mu.Unlock()
}

func (g *Gauge) Dec() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.val--
	g.mu.Unlock()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, err := fmt.Fprintf(w, "%s %f\n", g.name, g.val)
	return err
}

type GaugeVec struct {
	name       string
	help       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{name: name, help: help, labelNames: labels, values: map[string]float64{}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	lbl := labelString(g.labelNames, values)
	g.mu.Lock()
	g.values[lbl] = v
	g.mu.Unlock()
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s gauge\n", g.name); err != nil {
		return err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k, v := range g.values {
		if _, err := fmt.Fprintf(w, "%s%s %f\n", g.name, k, v); err != nil {
			return err
		}
	}
	return nil
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	total   uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{
			buckets: h.buckets,
			counts:  make([]uint64, len(h.buckets)+1),
		}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range hist.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(hist.counts)-1]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n", h.name, h.help); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# TYPE %s histogram\n", h.name); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.values {
		for i, b := range v.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(v.counts)-1]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %f\n", h.name, k, v.sum); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_count%s %d\n", h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	if strings.HasSuffix(labels, "}") {
		return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
	}
	return "{le=\"" + le + "\"}"
}

func isServerErrorStatus(status string) bool {
	status = strings.TrimSpace(status)
	if len(status) < 3 {
		return false
	}
	return status[0] == '5'
}

func isFailureStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "failed", "error", "timeout", "panic":
		return true
	default:
		return false
	}
}
