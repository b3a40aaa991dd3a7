package usecase

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stagepass/marketplace/internal/infra/config"
)

func testMarketSettings() config.MarketSettings {
	return config.MarketSettings{
		FeeRate:       "0.10",
		RoyaltyRate:   "0.10",
		ArtistShare:   "0.50",
		VenueShare:    "0.30",
		HostShare:     "0.15",
		PlatformShare: "0.05",
	}
}

func newTestFeeEngine(t *testing.T) *FeeEngine {
	t.Helper()

	engine, err := NewFeeEngine(testMarketSettings())
	if err != nil {
		t.Fatalf("create fee engine: %v", err)
	}
	return engine
}

func TestNewFeeEngineRejectsBadShares(t *testing.T) {
	cfg := testMarketSettings()
	cfg.PlatformShare = "0.10"

	if _, err := NewFeeEngine(cfg); err == nil {
		t.Fatal("expected error when shares do not sum to 1")
	}
}

func TestNewFeeEngineRejectsNegativeRate(t *testing.T) {
	cfg := testMarketSettings()
	cfg.FeeRate = "-0.10"

	if _, err := NewFeeEngine(cfg); err == nil {
		t.Fatal("expected error for negative fee rate")
	}
}

func TestCalculateFees(t *testing.T) {
	engine := newTestFeeEngine(t)

	cases := []struct {
		name     string
		subtotal string
		fee      string
		total    string
	}{
		{"round price", "100.00", "10.00", "110.00"},
		{"odd cents", "33.33", "3.33", "36.66"},
		{"half-up rounding", "10.05", "1.01", "11.06"},
		{"sub-cent price", "0.04", "0.00", "0.04"},
		{"zero", "0.00", "0.00", "0.00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subtotal := decimal.RequireFromString(tc.subtotal)

			breakdown, err := engine.CalculateFees(subtotal)
			if err != nil {
				t.Fatalf("calculate fees: %v", err)
			}

			if breakdown.Fee.StringFixed(2) != tc.fee {
				t.Errorf("fee: expected %s, got %s", tc.fee, breakdown.Fee.StringFixed(2))
			}
			if breakdown.Total.StringFixed(2) != tc.total {
				t.Errorf("total: expected %s, got %s", tc.total, breakdown.Total.StringFixed(2))
			}
			if !breakdown.Subtotal.Add(breakdown.Fee).Equal(breakdown.Total) {
				t.Error("subtotal plus fee must equal total")
			}
		})
	}
}

func TestCalculateFeesRejectsNegative(t *testing.T) {
	engine := newTestFeeEngine(t)

	if _, err := engine.CalculateFees(decimal.RequireFromString("-1.00")); err == nil {
		t.Fatal("expected error for negative subtotal")
	}
}

func TestSplitRoyalty(t *testing.T) {
	engine := newTestFeeEngine(t)

	split, err := engine.SplitRoyalty(decimal.RequireFromString("200.00"))
	if err != nil {
		t.Fatalf("split royalty: %v", err)
	}

	if split.Royalty.StringFixed(2) != "20.00" {
		t.Fatalf("royalty: expected 20.00, got %s", split.Royalty.StringFixed(2))
	}
	if split.Artist.StringFixed(2) != "10.00" {
		t.Errorf("artist: expected 10.00, got %s", split.Artist.StringFixed(2))
	}
	if split.Venue.StringFixed(2) != "6.00" {
		t.Errorf("venue: expected 6.00, got %s", split.Venue.StringFixed(2))
	}
	if split.Host.StringFixed(2) != "3.00" {
		t.Errorf("host: expected 3.00, got %s", split.Host.StringFixed(2))
	}
	if split.Platform.StringFixed(2) != "1.00" {
		t.Errorf("platform: expected 1.00, got %s", split.Platform.StringFixed(2))
	}
}

func TestSplitRoyaltyRemainderLandsOnPlatform(t *testing.T) {
	engine := newTestFeeEngine(t)

	// 33.33 -> royalty 3.33; artist 1.67, venue 1.00, host 0.50 leave 0.16
	// for the platform instead of the naive 0.17.
	split, err := engine.SplitRoyalty(decimal.RequireFromString("33.33"))
	if err != nil {
		t.Fatalf("split royalty: %v", err)
	}

	sum := split.Artist.Add(split.Venue).Add(split.Host).Add(split.Platform)
	if !sum.Equal(split.Royalty) {
		t.Fatalf("shares must reconcile to the royalty pot: %s != %s", sum, split.Royalty)
	}
	if split.Platform.StringFixed(2) != "0.16" {
		t.Errorf("platform share: expected 0.16, got %s", split.Platform.StringFixed(2))
	}
}
