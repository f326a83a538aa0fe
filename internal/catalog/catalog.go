// Package catalog implements C3 Catalog: rolling-slug enumeration,
// explicit slug/prefix lookups, keyword-based active-market scanning,
// dedup by market id, and a two-stage fallback widening when a cycle's
// primary discovery comes back empty, per spec.md §4.3. Grounded on
// original_source's GammaAdapter (slug generation, slug-prefix fetch,
// keyword scan) ported onto the teacher's wired gamma.Client plus
// GammaSelector scoring shape (internal/strategy/selector.go).
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/gamma"

	"github.com/GoPolymarket/polymarket-trader/internal/market"
)

// Config mirrors spec.md §6's catalog.* keys.
type Config struct {
	RollingPrefixes   []string // e.g. "btc-updown-15m-"
	BucketSeconds     int
	Windows           int
	LookbackWindows   int
	ExplicitSlugs     []string
	FocusKeywords     []string
	FallbackLimit     int
	AltRefreshS       float64
	AltKeywords       []string
}

// Catalog discovers tradable BTC-window markets each cycle and caches a
// lower-rate secondary (non-BTC) discovery set.
type Catalog struct {
	gammaClient gamma.Client
	cfg         Config

	lastAltRefresh time.Time
	altCache       []market.Ref
}

// New constructs a Catalog bound to the given Gamma client.
func New(gammaClient gamma.Client, cfg Config) *Catalog {
	return &Catalog{gammaClient: gammaClient, cfg: cfg}
}

func toRef(m gamma.Market) (market.Ref, bool) {
	tokens := m.ParsedTokens()
	if len(tokens) < 2 {
		return market.Ref{}, false
	}
	liq, _ := strconv.ParseFloat(m.Liquidity, 64)
	endDate, _ := time.Parse(time.RFC3339, m.EndDate)

	var yesHint, noHint float64
	var prices []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err == nil {
		if len(prices) > 0 {
			yesHint, _ = strconv.ParseFloat(prices[0], 64)
		}
		if len(prices) > 1 {
			noHint, _ = strconv.ParseFloat(prices[1], 64)
		}
	}

	var eventStart time.Time
	var resolutionSource string
	if len(m.Events) > 0 {
		resolutionSource = m.Events[0].ResolutionSource
		eventStart, _ = time.Parse(time.RFC3339, m.Events[0].StartTime)
	}

	return market.Ref{
		MarketID:         m.ConditionID,
		Question:         m.Question,
		YesToken:         tokens[0].TokenID,
		NoToken:          tokens[1].TokenID,
		AcceptingOrders:  m.AcceptingOrders,
		LiquidityHint:    liq,
		YesPriceHint:     yesHint,
		NoPriceHint:      noHint,
		EndTime:          endDate,
		EventStartTime:   eventStart,
		ResolutionSource: resolutionSource,
		Slug:             m.Slug,
	}, true
}

// fetchAll is the one Gamma /markets page this cycle's discovery is
// filtered from, fetched active-only, newest-first by volume.
func (c *Catalog) fetchAll(ctx context.Context, limit int) ([]gamma.Market, error) {
	active := true
	closed := false
	markets, err := c.gammaClient.Markets(ctx, &gamma.MarketsRequest{
		Active: &active,
		Closed: &closed,
		Order:  "volume",
		Limit:  &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch markets: %w", err)
	}
	return markets, nil
}

// generatedSlugs builds the rolling-window slug candidates of spec.md
// §4.3: prefix + bucketed unix timestamp, spanning lookback..forward
// windows around the current bucket boundary.
func (c *Catalog) generatedSlugs(now time.Time) []string {
	if len(c.cfg.RollingPrefixes) == 0 || c.cfg.BucketSeconds <= 0 {
		return nil
	}
	bucket := int64(c.cfg.BucketSeconds)
	base := (now.Unix() / bucket) * bucket
	var slugs []string
	for _, p := range c.cfg.RollingPrefixes {
		for k := -c.cfg.LookbackWindows; k <= c.cfg.Windows; k++ {
			slugs = append(slugs, fmt.Sprintf("%s%d", p, base+bucket*int64(k)))
		}
	}
	return slugs
}

// Discover runs the two-stage fallback of spec.md §4.3: rolling-slug
// generation first, widening to slug-prefix + keyword scanning of the
// full active set when the rolling stage returns nothing usable.
func (c *Catalog) Discover(ctx context.Context, now time.Time) ([]market.Ref, error) {
	all, err := c.fetchAll(ctx, c.cfg.FallbackLimit)
	if err != nil {
		return nil, err
	}

	bySlug := make(map[string]gamma.Market, len(all))
	for _, m := range all {
		bySlug[strings.ToLower(m.Slug)] = m
	}

	refs := c.byGeneratedSlugs(bySlug, now)
	if len(refs) > 0 {
		return dedup(refs), nil
	}

	// Stage 2: widen to slug-prefix matching across the full fetched set.
	refs = c.byPrefix(all)
	if len(refs) > 0 {
		return dedup(refs), nil
	}

	// Stage 3: widen further to keyword scan + explicit slugs.
	refs = append(refs, c.byKeyword(all)...)
	for _, slug := range c.cfg.ExplicitSlugs {
		if m, ok := bySlug[strings.ToLower(slug)]; ok {
			if ref, ok := toRef(m); ok {
				refs = append(refs, ref)
			}
		}
	}
	return dedup(refs), nil
}

func (c *Catalog) byGeneratedSlugs(bySlug map[string]gamma.Market, now time.Time) []market.Ref {
	var refs []market.Ref
	for _, slug := range c.generatedSlugs(now) {
		if m, ok := bySlug[strings.ToLower(slug)]; ok {
			if ref, ok := toRef(m); ok {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

func (c *Catalog) byPrefix(all []gamma.Market) []market.Ref {
	var refs []market.Ref
	for _, m := range all {
		slug := strings.ToLower(m.Slug)
		for _, p := range c.cfg.RollingPrefixes {
			if strings.HasPrefix(slug, strings.ToLower(p)) {
				if ref, ok := toRef(m); ok {
					refs = append(refs, ref)
				}
				break
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].EndTime.After(refs[j].EndTime) })
	return refs
}

func (c *Catalog) byKeyword(all []gamma.Market) []market.Ref {
	if len(c.cfg.FocusKeywords) == 0 {
		return nil
	}
	var refs []market.Ref
	for _, m := range all {
		hay := strings.ToLower(m.Question + " " + m.Slug)
		matched := false
		for _, kw := range c.cfg.FocusKeywords {
			if kw != "" && strings.Contains(hay, strings.ToLower(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if ref, ok := toRef(m); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

func dedup(refs []market.Ref) []market.Ref {
	seen := make(map[string]bool, len(refs))
	out := make([]market.Ref, 0, len(refs))
	for _, r := range refs {
		if seen[r.MarketID] {
			continue
		}
		seen[r.MarketID] = true
		out = append(out, r)
	}
	return out
}

// AltDiscover refreshes and returns the secondary (non-BTC) discovery
// cache at most once per alt_refresh_s, per spec.md §4.3.
func (c *Catalog) AltDiscover(ctx context.Context, now time.Time) ([]market.Ref, error) {
	if now.Sub(c.lastAltRefresh).Seconds() < c.cfg.AltRefreshS && c.altCache != nil {
		return c.altCache, nil
	}
	all, err := c.fetchAll(ctx, c.cfg.FallbackLimit)
	if err != nil {
		return c.altCache, err
	}
	altCfg := *c
	altCfg.cfg.FocusKeywords = c.cfg.AltKeywords
	refs := altCfg.byKeyword(all)
	c.altCache = dedup(refs)
	c.lastAltRefresh = now
	return c.altCache, nil
}
