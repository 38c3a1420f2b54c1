package schemas

import (
	"context"
)

// -- Store Interface --

// Store defines a persistent storage system for campaign reports. This
// abstraction keeps the campaign runner independent of the database in use.
type Store interface {
	// PersistCampaign saves a finished campaign report, its attempts and its
	// search-space catalogue.
	PersistCampaign(ctx context.Context, report *CampaignReport) error
}
