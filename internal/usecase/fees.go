package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stagepass/marketplace/internal/infra/config"
)

// FeeBreakdown carries the buyer-facing totals for one listing price.
type FeeBreakdown struct {
	Subtotal decimal.Decimal
	Fee      decimal.Decimal
	Total    decimal.Decimal
}

// RoyaltySplit distributes a royalty pot across the payout parties. The
// four shares always sum to exactly the royalty amount.
type RoyaltySplit struct {
	Royalty  decimal.Decimal
	Artist   decimal.Decimal
	Venue    decimal.Decimal
	Host     decimal.Decimal
	Platform decimal.Decimal
}

// FeeEngine computes marketplace fees and royalty splits. All amounts are
// fixed-point with two decimal places, rounded half up; any rounding
// remainder in a split lands on the platform share.
type FeeEngine struct {
	feeRate       decimal.Decimal
	royaltyRate   decimal.Decimal
	artistShare   decimal.Decimal
	venueShare    decimal.Decimal
	hostShare     decimal.Decimal
	platformShare decimal.Decimal
}

// NewFeeEngine parses the configured rates. Share rates must sum to 1.
func NewFeeEngine(cfg config.MarketSettings) (*FeeEngine, error) {
	feeRate, err := decimal.NewFromString(cfg.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("parse fee rate: %w", err)
	}
	royaltyRate, err := decimal.NewFromString(cfg.RoyaltyRate)
	if err != nil {
		return nil, fmt.Errorf("parse royalty rate: %w", err)
	}
	artistShare, err := decimal.NewFromString(cfg.ArtistShare)
	if err != nil {
		return nil, fmt.Errorf("parse artist share: %w", err)
	}
	venueShare, err := decimal.NewFromString(cfg.VenueShare)
	if err != nil {
		return nil, fmt.Errorf("parse venue share: %w", err)
	}
	hostShare, err := decimal.NewFromString(cfg.HostShare)
	if err != nil {
		return nil, fmt.Errorf("parse host share: %w", err)
	}
	platformShare, err := decimal.NewFromString(cfg.PlatformShare)
	if err != nil {
		return nil, fmt.Errorf("parse platform share: %w", err)
	}

	if feeRate.IsNegative() || royaltyRate.IsNegative() {
		return nil, fmt.Errorf("rates must not be negative")
	}

	one := decimal.NewFromInt(1)
	if !artistShare.Add(venueShare).Add(hostShare).Add(platformShare).Equal(one) {
		return nil, fmt.Errorf("royalty shares must sum to 1")
	}

	return &FeeEngine{
		feeRate:       feeRate,
		royaltyRate:   royaltyRate,
		artistShare:   artistShare,
		venueShare:    venueShare,
		hostShare:     hostShare,
		platformShare: platformShare,
	}, nil
}

// CalculateFees returns the buyer fee and grand total for a listing price.
func (e *FeeEngine) CalculateFees(subtotal decimal.Decimal) (FeeBreakdown, error) {
	if subtotal.IsNegative() {
		return FeeBreakdown{}, fmt.Errorf("subtotal must not be negative")
	}

	rounded := subtotal.Round(2)
	fee := rounded.Mul(e.feeRate).Round(2)

	return FeeBreakdown{
		Subtotal: rounded,
		Fee:      fee,
		Total:    rounded.Add(fee),
	}, nil
}

// SplitRoyalty computes the royalty pot for a sale and divides it across the
// payout parties. Each share is rounded half up; the platform absorbs the
// remainder so the shares reconcile to the pot exactly.
func (e *FeeEngine) SplitRoyalty(subtotal decimal.Decimal) (RoyaltySplit, error) {
	if subtotal.IsNegative() {
		return RoyaltySplit{}, fmt.Errorf("subtotal must not be negative")
	}

	royalty := subtotal.Round(2).Mul(e.royaltyRate).Round(2)

	artist := royalty.Mul(e.artistShare).Round(2)
	venue := royalty.Mul(e.venueShare).Round(2)
	host := royalty.Mul(e.hostShare).Round(2)
	platform := royalty.Sub(artist).Sub(venue).Sub(host)

	return RoyaltySplit{
		Royalty:  royalty,
		Artist:   artist,
		Venue:    venue,
		Host:     host,
		Platform: platform,
	}, nil
}
