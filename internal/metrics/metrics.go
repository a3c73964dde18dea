package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paie/internal/attendance"
)

const namespace = "paie"

// Collectors holds the engine and http metrics. It implements
// attendance.Observer.
type Collectors struct {
	registry      *prometheus.Registry
	sessions      *prometheus.CounterVec
	codesIssued   prometheus.Counter
	verifications *prometheus.CounterVec
	marked        *prometheus.CounterVec
	deliveryFails prometheus.Counter
	requests      *prometheus.HistogramVec
}

var _ attendance.Observer = (*Collectors)(nil)

// New registers all collectors, plus the go and process collectors, on a
// fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		registry: reg,
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Sessions opened and closed.",
		}, []string{"transition"}),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_issued_total",
			Help:      "One-time codes issued.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_verifications_total",
			Help:      "Code verification attempts by outcome.",
		}, []string{"outcome"}),
		marked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_marked_total",
			Help:      "Attendance records created.",
		}, []string{"origin", "status"}),
		deliveryFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_delivery_failures_total",
			Help:      "Codes that could not be handed to delivery.",
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.sessions, c.codesIssued, c.verifications, c.marked, c.deliveryFails, c.requests,
	)
	return c
}

func (c *Collectors) SessionOpened()  { c.sessions.WithLabelValues("opened").Inc() }
func (c *Collectors) SessionClosed()  { c.sessions.WithLabelValues("closed").Inc() }
func (c *Collectors) CodeIssued()     { c.codesIssued.Inc() }
func (c *Collectors) DeliveryFailed() { c.deliveryFails.Inc() }

func (c *Collectors) CodeVerification(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

func (c *Collectors) AttendanceMarked(origin attendance.Origin, status attendance.Status) {
	c.marked.WithLabelValues(string(origin), string(status)).Inc()
}

// Registry exposes the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the text exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Gin records request latency by matched route.
func (c *Collectors) Gin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.requests.WithLabelValues(ctx.Request.Method, route, strconv.Itoa(ctx.Writer.Status())).
			Observe(time.Since(started).Seconds())
	}
}
