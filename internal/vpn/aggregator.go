package vpn

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jellydator/ttlcache/v3"

	"github.com/rawblock/geoshield-engine/internal/config"
	"github.com/rawblock/geoshield-engine/pkg/models"
)

const (
	defaultCallTimeout = 5 * time.Second
	defaultCacheTTL    = 15 * time.Minute
	defaultPoolSize    = 32
)

// AggregatorConfig wires an Aggregator. Providers are queried in the
// order given; that order is preserved in the result details.
type AggregatorConfig struct {
	Logger     *slog.Logger
	Thresholds *config.Registry
	Providers  []Provider

	CallTimeout time.Duration
	CacheTTL    time.Duration
	PoolSize    int
}

func (c *AggregatorConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Thresholds == nil {
		return errors.New("threshold registry is required")
	}
	if len(c.Providers) == 0 {
		return errors.New("at least one provider is required")
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = defaultCacheTTL
	}
	if c.PoolSize == 0 {
		c.PoolSize = defaultPoolSize
	}
	return nil
}

// Aggregator fans an IP out to every enabled reputation provider and
// folds the answers into a consensus verdict. It never fails the
// enclosing request: an all-provider-error outcome degrades to a
// not-detected verdict with a diagnostic.
type Aggregator struct {
	log         *slog.Logger
	thresholds  *config.Registry
	providers   []Provider
	callTimeout time.Duration

	cache *ttlcache.Cache[string, *models.VPNAggregateResult]
	pool  pond.ResultPool[models.VPNProviderResult]
}

func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Expiry is absolute: a hot IP must still be re-checked every TTL, so
	// reads must not extend an entry's lifetime.
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *models.VPNAggregateResult](cfg.CacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *models.VPNAggregateResult](),
	)
	go cache.Start()

	return &Aggregator{
		log:         cfg.Logger,
		thresholds:  cfg.Thresholds,
		providers:   cfg.Providers,
		callTimeout: cfg.CallTimeout,
		cache:       cache,
		pool:        pond.NewResultPool[models.VPNProviderResult](cfg.PoolSize),
	}, nil
}

// Close stops the cache janitor and the worker pool. The aggregator
// must not be used afterwards.
func (a *Aggregator) Close() {
	a.cache.Stop()
	a.pool.StopAndWait()
}

// ProviderNames lists the registered providers in dispatch order.
func (a *Aggregator) ProviderNames() []string {
	names := make([]string, len(a.providers))
	for i, p := range a.providers {
		names[i] = p.Name()
	}
	return names
}

// Detect runs the full aggregation for one IP.
//
// Private, loopback and otherwise reserved addresses short-circuit before
// any provider is contacted. Results for public IPs are cached for the
// configured TTL so bursts from the same address cost one round of
// provider calls.
func (a *Aggregator) Detect(ctx context.Context, ip string) *models.VPNAggregateResult {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return &models.VPNAggregateResult{
			IP:      ip,
			Details: models.VPNDetails{Error: "Invalid IP address"},
		}
	}
	if isPrivateOrReserved(parsed) {
		return &models.VPNAggregateResult{
			IP:      ip,
			Details: models.VPNDetails{Error: "Private IP"},
		}
	}

	if item := a.cache.Get(ip); item != nil {
		return item.Value()
	}

	results := a.dispatch(ctx, ip)
	agg := a.aggregate(ip, results)

	// Only cache verdicts backed by at least one successful check.
	if agg.Details.TotalChecks > 0 {
		a.cache.Set(ip, agg, ttlcache.DefaultTTL)
	}
	return agg
}

// dispatch queries every provider concurrently with an individual
// deadline. The returned slice is in registry order; failed calls carry
// an error marker instead of aborting the batch.
func (a *Aggregator) dispatch(ctx context.Context, ip string) []models.VPNProviderResult {
	group := a.pool.NewGroup()
	for _, p := range a.providers {
		provider := p
		group.SubmitErr(func() (models.VPNProviderResult, error) {
			callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
			defer cancel()

			res, err := provider.Check(callCtx, ip)
			if err != nil {
				a.log.Warn("provider check failed", "provider", provider.Name(), "ip", ip, "error", err)
				return models.VPNProviderResult{
					Provider: provider.Name(),
					Error:    err.Error(),
				}, nil
			}
			res.Provider = provider.Name()
			return res, nil
		})
	}

	// Tasks never return errors themselves; a group error means the pool
	// was stopped underneath us. Record that like any provider failure.
	results, err := group.Wait()
	if err != nil || len(results) != len(a.providers) {
		out := make([]models.VPNProviderResult, len(a.providers))
		for i, p := range a.providers {
			msg := "dispatch aborted"
			if err != nil {
				msg = err.Error()
			}
			out[i] = models.VPNProviderResult{Provider: p.Name(), Error: msg}
		}
		return out
	}
	return results
}

// aggregate computes the consensus verdict. Errored providers are
// excluded from the confidence denominator.
func (a *Aggregator) aggregate(ip string, results []models.VPNProviderResult) *models.VPNAggregateResult {
	successful := 0
	detections := 0
	var detectedBy []string
	for _, r := range results {
		if r.Failed() {
			continue
		}
		successful++
		if r.IsVPN {
			detections++
			detectedBy = append(detectedBy, r.Provider)
		}
	}

	agg := &models.VPNAggregateResult{
		IP:         ip,
		DetectedBy: detectedBy,
		Details: models.VPNDetails{
			TotalChecks:   successful,
			VPNDetections: detections,
			Services:      results,
		},
	}

	if successful == 0 {
		agg.Details.Error = "All provider checks failed"
		return agg
	}

	agg.Confidence = int(math.Round(100 * float64(detections) / float64(successful)))
	agg.IsVPN = agg.Confidence >= a.thresholds.Get().VPN.Confidence.Detected
	return agg
}

// isPrivateOrReserved reports whether an address can never be a public
// client: RFC1918/ULA, loopback, link-local, unspecified.
func isPrivateOrReserved(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// ProvidersFromEnv builds the provider registry from the configured
// credentials. A missing credential disables only that provider; the
// keyword fallback is always enabled.
func ProvidersFromEnv(client *http.Client) []Provider {
	if client == nil {
		client = &http.Client{Timeout: defaultCallTimeout}
	}

	var providers []Provider
	if token := os.Getenv("IPINFO_TOKEN"); token != "" {
		providers = append(providers, NewIPInfo(token, client))
	}
	if key := os.Getenv("VPNAPI_KEY"); key != "" {
		providers = append(providers, NewVPNAPI(key, client))
	}
	if key := os.Getenv("IPQUALITYSCORE_KEY"); key != "" {
		providers = append(providers, NewIPQualityScore(key, client))
	}
	if key := os.Getenv("IPHUB_KEY"); key != "" {
		providers = append(providers, NewIPHub(key, client))
	}
	if key := os.Getenv("ABSTRACTAPI_KEY"); key != "" {
		providers = append(providers, NewAbstractAPI(key, client))
	}
	providers = append(providers, NewIPAPI(os.Getenv("IPAPI_KEY"), client))
	return providers
}
