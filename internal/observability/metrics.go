package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/huddle-backend/internal/domain"
	"github.com/yungbote/huddle-backend/internal/platform/envutil"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiReqTotal *Counter
	apiReqError *Counter

	messagesSent    *CounterVec
	idempotency     *CounterVec
	postcommitTasks *CounterVec
	postcommitDrops *Counter
	realtimeDrops   *Counter
	realtimeClients *Gauge
	realtimePublish *CounterVec
	typingLimited   *Counter

	jobRuns     *CounterVec
	jobDuration *HistogramVec
	queueDepth  *GaugeVec
	pgStats     *GaugeVec
	redisUp     *Gauge
	redisPing   *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

// Init builds the process-wide metrics set. It returns nil when metrics are
// disabled; every method is a no-op on a nil receiver.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("huddle_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"huddle_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("huddle_api_inflight_requests", "In-flight API requests."),
		apiReqTotal: NewCounter("huddle_api_requests_total_all", "Total API requests (all)."),
		apiReqError: NewCounter("huddle_api_requests_error_total", "Total API requests with 5xx status."),

		messagesSent:    NewCounterVec("huddle_messages_sent_total", "Messages persisted by type.", []string{"type"}),
		idempotency:     NewCounterVec("huddle_idempotency_total", "Idempotency gate outcomes by scope.", []string{"scope", "outcome"}),
		postcommitTasks: NewCounterVec("huddle_postcommit_tasks_total", "Post-commit task outcomes by task name.", []string{"task", "status"}),
		postcommitDrops: NewCounter("huddle_postcommit_dropped_total", "Post-commit tasks dropped because a shard was full."),
		realtimeDrops:   NewCounter("huddle_realtime_dropped_total", "Realtime messages dropped on full client buffers."),
		realtimeClients: NewGauge("huddle_realtime_clients", "Connected realtime clients."),
		realtimePublish: NewCounterVec("huddle_realtime_publish_total", "Realtime publishes by status.", []string{"status"}),
		typingLimited:   NewCounter("huddle_typing_rate_limited_total", "Typing notifications rejected by the rate limiter."),

		jobRuns: NewCounterVec("huddle_job_runs_total", "Background job runs by type/status.", []string{"job_type", "status"}),
		jobDuration: NewHistogramVec(
			"huddle_job_duration_seconds",
			"Background job duration in seconds.",
			[]string{"job_type", "status"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		queueDepth: NewGaugeVec("huddle_job_queue_depth", "Job runs by status.", []string{"status"}),
		pgStats:    NewGaugeVec("huddle_postgres_pool", "Postgres connection pool stats.", []string{"stat"}),
		redisUp:    NewGauge("huddle_redis_up", "Redis reachability (1 up, 0 down)."),
		redisPing:  NewGauge("huddle_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiReqTotal, m.apiReqError,
		m.messagesSent, m.idempotency, m.postcommitTasks, m.postcommitDrops,
		m.realtimeDrops, m.realtimeClients, m.realtimePublish, m.typingLimited,
		m.jobRuns, m.jobDuration, m.queueDepth, m.pgStats, m.redisUp, m.redisPing,
	}
	for _, pw := range all {
		if err := pw.WritePrometheus(w); err != nil {
			return err
		}
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

func (m *Metrics) IncMessageSent(msgType string) {
	if m == nil {
		return
	}
	m.messagesSent.Inc(msgType)
}

func (m *Metrics) IncIdempotency(scope, outcome string) {
	if m == nil {
		return
	}
	m.idempotency.Inc(scope, outcome)
}

// ObservePostCommit matches postcommit.QueueConfig.OnResult.
func (m *Metrics) ObservePostCommit(task string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.postcommitTasks.Inc(task, status)
}

func (m *Metrics) IncPostCommitDropped() {
	if m == nil {
		return
	}
	m.postcommitDrops.Inc()
}

func (m *Metrics) IncRealtimeDropped(channel string) {
	if m == nil {
		return
	}
	m.realtimeDrops.Inc()
}

func (m *Metrics) SetRealtimeClients(n int) {
	if m == nil {
		return
	}
	m.realtimeClients.Set(float64(n))
}

func (m *Metrics) IncRealtimePublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.realtimePublish.Inc("error")
		return
	}
	m.realtimePublish.Inc("ok")
}

func (m *Metrics) IncTypingLimited() {
	if m == nil {
		return
	}
	m.typingLimited.Inc()
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if jobType == "" {
		jobType = "unknown"
	}
	m.jobRuns.Inc(jobType, status)
	m.jobDuration.Observe(dur.Seconds(), jobType, status)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
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
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
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
