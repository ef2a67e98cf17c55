package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/engine"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// GeoLocator resolves an IP address to a coarse location.
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) (domain.Geo, error)
}

// HTTPGeoLocator queries an ipinfo-style API: GET {base}/{ip}/json.
type HTTPGeoLocator struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewHTTPGeoLocator(baseURL, token string, timeout time.Duration) *HTTPGeoLocator {
	return &HTTPGeoLocator{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type ipinfoResponse struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Postal  string `json:"postal"`
}

func (l *HTTPGeoLocator) Lookup(ctx context.Context, ip string) (domain.Geo, error) {
	endpoint := fmt.Sprintf("%s/%s/json", l.baseURL, url.PathEscape(ip))
	if l.token != "" {
		endpoint += "?token=" + url.QueryEscape(l.token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Geo{}, fmt.Errorf("creating geo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return domain.Geo{}, fmt.Errorf("geo request failed: %w", err)
	}
	defer resp.Body.Close()

	// Limit to 64KB; the real payload is a few hundred bytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return domain.Geo{}, fmt.Errorf("reading geo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Geo{}, fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var data ipinfoResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return domain.Geo{}, fmt.Errorf("decoding geo response: %w", err)
	}

	return domain.Geo{
		Country:    data.Country,
		City:       data.City,
		Region:     data.Region,
		PostalCode: data.Postal,
	}, nil
}

// geoDependency names the shared breaker and rate-limit budget.
const geoDependency = "geo"

// GuardedGeoLocator wraps a GeoLocator with a Redis cache, a shared rate
// limit and a circuit breaker. It never returns an error: every failure or
// denial yields an empty Geo.
type GuardedGeoLocator struct {
	next      GeoLocator
	client    *redis.Client
	limiter   *engine.RateLimiter
	breaker   *engine.CircuitBreaker
	cacheTTL  time.Duration
	rateLimit int
	logger    *slog.Logger
}

// GuardOptions configures a GuardedGeoLocator.
type GuardOptions struct {
	CacheTTL           time.Duration
	RateLimitPerSecond int
}

func NewGuardedGeoLocator(next GeoLocator, client *redis.Client, limiter *engine.RateLimiter, breaker *engine.CircuitBreaker, opts GuardOptions, logger *slog.Logger) *GuardedGeoLocator {
	return &GuardedGeoLocator{
		next:      next,
		client:    client,
		limiter:   limiter,
		breaker:   breaker,
		cacheTTL:  opts.CacheTTL,
		rateLimit: opts.RateLimitPerSecond,
		logger:    logger,
	}
}

func geoKey(ip string) string {
	return "geo:" + ip
}

func (g *GuardedGeoLocator) Lookup(ctx context.Context, ip string) (domain.Geo, error) {
	if ip == "" {
		metrics.GeoLookups.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return domain.Geo{}, nil
	}

	if geo, ok := g.cached(ctx, ip); ok {
		metrics.GeoLookups.WithLabelValues(metrics.OutcomeCached).Inc()
		return geo, nil
	}

	if _, allowed := g.breaker.Allow(ctx, geoDependency); !allowed {
		metrics.GeoLookups.WithLabelValues(metrics.OutcomeSkipped).Inc()
		g.logger.Debug("geo lookup skipped, circuit open", "ip", ip)
		return domain.Geo{}, nil
	}
	if !g.limiter.Allow(ctx, geoDependency, g.rateLimit) {
		metrics.GeoLookups.WithLabelValues(metrics.OutcomeSkipped).Inc()
		g.logger.Debug("geo lookup skipped, rate limited", "ip", ip)
		return domain.Geo{}, nil
	}

	geo, err := g.next.Lookup(ctx, ip)
	if err != nil {
		g.breaker.RecordFailure(ctx, geoDependency)
		metrics.GeoLookups.WithLabelValues(metrics.OutcomeFailure).Inc()
		g.logger.Warn("geo lookup failed", "error", err, "ip", ip)
		return domain.Geo{}, nil
	}
	g.breaker.RecordSuccess(ctx, geoDependency)
	metrics.GeoLookups.WithLabelValues(metrics.OutcomeSuccess).Inc()

	g.store(ctx, ip, geo)
	return geo, nil
}

func (g *GuardedGeoLocator) cached(ctx context.Context, ip string) (domain.Geo, bool) {
	data, err := g.client.HGetAll(ctx, geoKey(ip)).Result()
	if err != nil || len(data) == 0 {
		return domain.Geo{}, false
	}
	return domain.Geo{
		Country:    data["country"],
		City:       data["city"],
		Region:     data["region"],
		PostalCode: data["postal_code"],
	}, true
}

func (g *GuardedGeoLocator) store(ctx context.Context, ip string, geo domain.Geo) {
	key := geoKey(ip)
	pipe := g.client.TxPipeline()
	pipe.HSet(ctx, key,
		"country", geo.Country,
		"city", geo.City,
		"region", geo.Region,
		"postal_code", geo.PostalCode,
	)
	if g.cacheTTL > 0 {
		pipe.Expire(ctx, key, g.cacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		g.logger.Warn("failed to cache geo lookup", "error", err, "ip", ip)
	}
}

// NoopGeoLocator is used when enrichment is disabled.
type NoopGeoLocator struct{}

func (NoopGeoLocator) Lookup(context.Context, string) (domain.Geo, error) {
	return domain.Geo{}, nil
}
