package snapshot

import (
	"testing"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"

	"github.com/GoPolymarket/polymarket-trader/internal/market"
)

func book(bids, asks [][2]string) clobtypes.OrderBook {
	var b clobtypes.OrderBook
	for _, lvl := range bids {
		b.Bids = append(b.Bids, clobtypes.PriceLevel{Price: lvl[0], Size: lvl[1]})
	}
	for _, lvl := range asks {
		b.Asks = append(b.Asks, clobtypes.PriceLevel{Price: lvl[0], Size: lvl[1]})
	}
	return b
}

func TestMergeTop3DepthUsesBestRungsOnly(t *testing.T) {
	yesBook := book(
		[][2]string{{"0.40", "10"}, {"0.39", "10"}, {"0.38", "10"}, {"0.01", "100000"}},
		[][2]string{{"0.50", "10"}, {"0.51", "10"}, {"0.52", "10"}, {"0.99", "100000"}},
	)
	noBook := book(
		[][2]string{{"0.45", "10"}, {"0.44", "10"}, {"0.43", "10"}},
		[][2]string{{"0.55", "10"}, {"0.56", "10"}, {"0.57", "10"}},
	)

	ref := market.Ref{MarketID: "m1", YesToken: "y", NoToken: "n", AcceptingOrders: true}
	s := Merge(ref, yesBook, noBook, nil, Config{FeeBps: 0, TargetSizeUSD: 100})

	// Deep rungs beyond the best 3 on each side must not count toward
	// Top3DepthUSD even though they dominate whole-book DepthUSD.
	if s.DepthUSD <= s.Top3DepthUSD {
		t.Fatalf("expected whole-book depth (%f) to exceed top-3 depth (%f)", s.DepthUSD, s.Top3DepthUSD)
	}

	wantYes := (0.40*10 + 0.39*10 + 0.38*10) + (0.50*10 + 0.51*10 + 0.52*10)
	wantNo := (0.45*10 + 0.44*10 + 0.43*10) + (0.55*10 + 0.56*10 + 0.57*10)
	if diff := s.Top3DepthUSD - (wantYes + wantNo); diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected top-3 depth %f, got %f", wantYes+wantNo, s.Top3DepthUSD)
	}
}

func TestMergeBestBidAskPicksExtremes(t *testing.T) {
	yesBook := book(
		[][2]string{{"0.40", "10"}, {"0.45", "10"}},
		[][2]string{{"0.55", "10"}, {"0.50", "10"}},
	)
	noBook := book(nil, nil)

	ref := market.Ref{MarketID: "m1", YesToken: "y", NoToken: "n", AcceptingOrders: true}
	s := Merge(ref, yesBook, noBook, nil, Config{})

	if s.YesBid != 0.45 {
		t.Fatalf("expected best bid 0.45, got %f", s.YesBid)
	}
	if s.YesAsk != 0.50 {
		t.Fatalf("expected best ask 0.50, got %f", s.YesAsk)
	}
}
