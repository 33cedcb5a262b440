package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

// DeactivationReport summarizes one deactivation sweep. Deactivated counts
// only listings whose active flag was switched off and saved.
type DeactivationReport struct {
	CategoryID      int64  `json:"category_id"`
	Source          string `json:"source,omitempty"`
	Discovered      int    `json:"discovered"`
	Processed       int    `json:"processed"`
	Deactivated     int    `json:"deactivated"`
	AlreadyInactive int    `json:"already_inactive"`
	OutOfCategory   int    `json:"out_of_category"`
	Failed          int    `json:"failed"`
}

// ListingDeactivator switches off every listing of a category.
type ListingDeactivator interface {
	DeactivateCategory(ctx context.Context, categoryID int64) DeactivationReport
}

// Deactivator walks ordered fallback chains because the marketplace bridge
// offers several partially working ways of reading and saving listings.
type Deactivator struct {
	chains domain.DeactivationChains
	logger *slog.Logger
}

var _ ListingDeactivator = (*Deactivator)(nil)

func NewDeactivator(logger *slog.Logger, chains domain.DeactivationChains) *Deactivator {
	return &Deactivator{chains: chains, logger: logger.With("component", "deactivator")}
}

func (d *Deactivator) DeactivateCategory(ctx context.Context, categoryID int64) DeactivationReport {
	report := DeactivationReport{CategoryID: categoryID}

	listings, strategy := d.discover(ctx, categoryID)
	if listings == nil {
		d.logger.ErrorContext(ctx, "Could not list listings for category", "category_id", categoryID)
		return report
	}
	report.Source = strategy.Name
	report.Discovered = len(listings)

	for _, listing := range listings {
		id := listing.ID()
		if id == "" {
			d.logger.DebugContext(ctx, "Skipping listing without id")
			continue
		}
		if !inCategory(listing, categoryID, strategy.Unfiltered) {
			report.OutOfCategory++
			d.logger.DebugContext(ctx, "Skipping listing outside category", "listing_id", id, "strategy", strategy.Name)
			continue
		}

		fields := d.fetchFields(ctx, id)
		if fields == nil {
			d.logger.WarnContext(ctx, "Could not load listing fields, skipping", "listing_id", id)
			report.Failed++
			continue
		}
		if !inCategory(fields, categoryID, false) {
			report.OutOfCategory++
			d.logger.WarnContext(ctx, "Listing fields name another category, skipping", "listing_id", id)
			continue
		}
		report.Processed++

		// Unknown state is switched off and saved like an active listing.
		if fields.ActiveKnown() && !fields.Active() {
			report.AlreadyInactive++
			d.logger.DebugContext(ctx, "Listing already inactive", "listing_id", id)
			continue
		}
		if err := fields.SetActive(false); err != nil {
			d.logger.WarnContext(ctx, "Could not switch listing off", "listing_id", id, "error", err)
			report.Failed++
			continue
		}
		if name, ok := d.save(ctx, id, fields); ok {
			report.Deactivated++
			listingsDeactivatedCounter.Inc()
			d.logger.InfoContext(ctx, "Listing deactivated", "listing_id", id, "via", name)
		} else {
			report.Failed++
		}
	}

	d.logger.WarnContext(ctx, "Deactivation sweep finished",
		"category_id", categoryID,
		"discovered", report.Discovered,
		"deactivated", report.Deactivated,
		"already_inactive", report.AlreadyInactive,
		"out_of_category", report.OutOfCategory,
		"failed", report.Failed,
	)
	return report
}

// inCategory keeps listings that state categoryID. A listing without a
// category is kept only when the strategy already filtered by category.
func inCategory(listing domain.ListingView, categoryID int64, unfiltered bool) bool {
	if cat, ok := listing.Category(); ok {
		return cat == categoryID
	}
	return !unfiltered
}

// discover returns the result of the first strategy that yields listings.
func (d *Deactivator) discover(ctx context.Context, categoryID int64) ([]domain.ListingView, domain.ListingDiscovery) {
	for _, s := range d.chains.Discovery {
		listings, err := s.Discover(ctx, categoryID)
		if err != nil {
			if errors.Is(err, domain.ErrUnsupported) {
				d.logger.DebugContext(ctx, "Listing discovery not offered by bridge", "strategy", s.Name)
			} else {
				d.logger.WarnContext(ctx, "Listing discovery strategy failed", "strategy", s.Name, "error", err)
			}
			continue
		}
		if len(listings) == 0 {
			continue
		}
		d.logger.DebugContext(ctx, "Listings discovered", "strategy", s.Name, "count", len(listings))
		return listings, s
	}
	return nil, domain.ListingDiscovery{}
}

func (d *Deactivator) fetchFields(ctx context.Context, id string) domain.ListingView {
	for _, s := range d.chains.FieldFetch {
		fields, err := s.Fetch(ctx, id)
		if err != nil {
			d.logger.DebugContext(ctx, "Listing field fetch failed", "strategy", s.Name, "listing_id", id, "error", err)
			continue
		}
		if fields == nil {
			continue
		}
		if got := fields.ID(); got != id {
			d.logger.WarnContext(ctx, "Listing field fetch returned another listing",
				"strategy", s.Name, "listing_id", id, "returned_id", got)
			continue
		}
		return fields
	}
	return nil
}

func (d *Deactivator) save(ctx context.Context, id string, fields domain.ListingView) (string, bool) {
	for _, s := range d.chains.Save {
		if err := s.Save(ctx, fields); err != nil {
			d.logger.DebugContext(ctx, "Listing save strategy failed", "strategy", s.Name, "listing_id", id, "error", err)
			continue
		}
		return s.Name, true
	}
	if fb := d.chains.FallbackSave; fb != nil {
		if err := fb.Save(ctx, fields); err != nil {
			d.logger.ErrorContext(ctx, "Could not deactivate listing", "listing_id", id, "error", err)
			return "", false
		}
		return fb.Name + " (fallback)", true
	}
	d.logger.ErrorContext(ctx, "Could not deactivate listing, no save strategy succeeded", "listing_id", id)
	return "", false
}
