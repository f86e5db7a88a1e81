package denylist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/adobe/aio-tvm/internal/core"
)

const (
	DefaultThreshold = 400
	DefaultCacheTTL  = 5 * time.Minute
)

var _ core.DenyListChecker = (*Gate)(nil)

// Snapshot is a point in time view of the per-tenant usage.
type Snapshot struct {
	// Updated is the time the usage was computed, in unix milliseconds.
	Updated int64 `json:"updated"`

	// Users maps a tenant to its usage metric.
	Users map[string]float64 `json:"users"`
}

type document struct {
	StateStore *Snapshot `json:"statestore"`
}

type Options struct {
	// Threshold above which a tenant is throttled.
	Threshold float64

	// CacheTTL is how long a fetched snapshot is reused.
	CacheTTL time.Duration

	HTTPClient *http.Client
	Clock      clock.PassiveClock
}

// Gate throttles tenants whose usage in the deny list is above a threshold.
// The snapshot is cached process wide. Fetch failures never block a request.
type Gate struct {
	threshold  float64
	ttl        time.Duration
	httpClient *http.Client
	clock      clock.PassiveClock

	group singleflight.Group

	mu        sync.RWMutex
	url       string
	snapshot  *Snapshot
	expiresAt time.Time
}

func NewGate(opts Options) *Gate {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Gate{
		threshold:  opts.Threshold,
		ttl:        opts.CacheTTL,
		httpClient: opts.HTTPClient,
		clock:      opts.Clock,
	}
}

// Check returns a throttle error if tenant is above the threshold in a
// fresh snapshot of the deny list at url. An empty url disables the check.
func (g *Gate) Check(ctx context.Context, url, tenant string, lease time.Duration) error {
	if url == "" {
		return nil
	}
	logger := log.Ctx(ctx)

	snapshot, err := g.load(ctx, url)
	if err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("error while fetching deny list")
		return nil
	}
	if snapshot == nil {
		return nil
	}

	updated := time.UnixMilli(snapshot.Updated)
	if updated.Add(lease).Before(g.clock.Now()) {
		logger.Info().Time("updated", updated).Msgf("deny list is expired - %d", snapshot.Updated)
		return nil
	}

	usage, ok := snapshot.Users[tenant]
	if !ok || usage <= g.threshold {
		return nil
	}
	return core.ThrottleError(
		"throttled request: usage - %sRUs is above threshold, wait for some time and retry",
		strconv.FormatFloat(usage, 'f', -1, 64))
}

func (g *Gate) load(ctx context.Context, url string) (*Snapshot, error) {
	g.mu.RLock()
	if g.url == url && g.clock.Now().Before(g.expiresAt) {
		snapshot := g.snapshot
		g.mu.RUnlock()
		return snapshot, nil
	}
	g.mu.RUnlock()

	// concurrent requests share one fetch
	v, err, _ := g.group.Do(url, func() (any, error) {
		snapshot, err := g.fetch(context.WithoutCancel(ctx), url)
		if err != nil {
			return nil, err
		}
		g.mu.Lock()
		g.url = url
		g.snapshot = snapshot
		g.expiresAt = g.clock.Now().Add(g.ttl)
		g.mu.Unlock()
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (g *Gate) fetch(ctx context.Context, url string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var doc document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding deny list: %w", err)
	}
	if doc.StateStore == nil {
		return nil, fmt.Errorf("deny list has no statestore")
	}
	return doc.StateStore, nil
}
