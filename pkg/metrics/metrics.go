package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabbridge/tabbridge/internal/common/config"
)

type Metrics struct {
	registry      *prometheus.Registry
	namespace     string
	httpReqCnt    *prometheus.CounterVec
	httpDur       *prometheus.HistogramVec
	connectedTabs prometheus.Gauge
	questionCnt   *prometheus.CounterVec
	streamEvtCnt  prometheus.Counter
	authFailCnt   prometheus.Counter
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	r.MustRegister(httpReqCnt, httpDur)

	connectedTabs := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "connected_tabs"})
	questionCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "questions_total"}, []string{"status"})
	streamEvtCnt := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "stream_events_total"})
	authFailCnt := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "auth_failures_total"})
	r.MustRegister(connectedTabs, questionCnt, streamEvtCnt, authFailCnt)

	return &Metrics{
		registry:      r,
		namespace:     ns,
		httpReqCnt:    httpReqCnt,
		httpDur:       httpDur,
		connectedTabs: connectedTabs,
		questionCnt:   questionCnt,
		streamEvtCnt:  streamEvtCnt,
		authFailCnt:   authFailCnt,
	}
}

// TabConnected tracks a new live tab connection
func (m *Metrics) TabConnected() { m.connectedTabs.Inc() }

// TabDisconnected tracks a closed tab connection
func (m *Metrics) TabDisconnected() { m.connectedTabs.Dec() }

// QuestionDone counts a completed question with a terminal status
// ("ok", "rejected", "unauthorized", "error")
func (m *Metrics) QuestionDone(status string) { m.questionCnt.WithLabelValues(status).Inc() }

// StreamEvent counts one decoded answer fragment
func (m *Metrics) StreamEvent() { m.streamEvtCnt.Inc() }

// AuthFailure counts one global credential invalidation
func (m *Metrics) AuthFailure() { m.authFailCnt.Inc() }

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
