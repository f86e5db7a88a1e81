package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog/log"

	"github.com/adobe/aio-tvm/internal/core"
)

const (
	namespace = "tvm"

	// JobName identifies this service on the push gateway.
	JobName = "tvm"

	unknownTenant = "unknown"
)

var _ core.MetricsRecorder = (*Recorder)(nil)

// Recorder counts requests per tenant. 4xx responses are user errors,
// everything else above 399 is a server error.
type Recorder struct {
	reg *prometheus.Registry

	requests   *prometheus.CounterVec
	userErrors *prometheus.CounterVec
	errors     *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_count",
			Help:      "Number of credential requests received.",
		}, []string{"tenant"}),
		userErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_error_count",
			Help:      "Number of credential requests rejected with a 4xx status.",
		}, []string{"tenant", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_count",
			Help:      "Number of credential requests failed with a server error.",
		}, []string{"tenant", "status"}),
	}
	r.reg.MustRegister(r.requests, r.userErrors, r.errors)
	return r
}

func (r *Recorder) RequestReceived(tenant string) {
	r.requests.WithLabelValues(tenantLabel(tenant)).Inc()
}

func (r *Recorder) RequestCompleted(tenant string, statusCode int) {
	switch {
	case statusCode < 400:
		return
	case statusCode < 500:
		r.userErrors.WithLabelValues(tenantLabel(tenant), strconv.Itoa(statusCode)).Inc()
	default:
		r.errors.WithLabelValues(tenantLabel(tenant), strconv.Itoa(statusCode)).Inc()
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Handler serves the metrics in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Push sends the current metrics to the push gateway at url once.
func (r *Recorder) Push(ctx context.Context, url string) error {
	return push.New(url, JobName).Gatherer(r.reg).PushContext(ctx)
}

// RunPusher pushes metrics every interval until ctx is done, and once more
// on the way out so the last interval is not lost.
func (r *Recorder) RunPusher(ctx context.Context, url string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.Push(flushCtx, url); err != nil {
				log.Warn().Err(err).Msg("error while flushing metrics")
			}
			cancel()
			return
		case <-ticker.C:
			if err := r.Push(ctx, url); err != nil {
				log.Warn().Err(err).Msg("error while pushing metrics")
			}
		}
	}
}

func tenantLabel(tenant string) string {
	if tenant == "" {
		return unknownTenant
	}
	return tenant
}
