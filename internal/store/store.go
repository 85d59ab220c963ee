// Package store defines the persistence interface and its implementations.
package store

import (
	"context"
	"time"

	"github.com/roelvdh/marktwatch/pkg/models"
)

// Storage is the interface for all persistence operations.
//
// ReplaceListings implements the clear-and-replace write path: the caller must
// read the previous snapshot with ListingsByTarget before calling it, since the
// delete inside the transaction destroys the diff baseline.
type Storage interface {
	ListingsByTarget(ctx context.Context, target string) ([]models.Listing, error)
	AllListings(ctx context.Context) ([]models.Listing, error)
	ReplaceListings(ctx context.Context, target string, extracted []models.Listing) (int, error)
	LatestListingTime(ctx context.Context) (time.Time, error)

	GetSetting(ctx context.Context, key string, out any) (bool, error)
	SetSetting(ctx context.Context, key string, value any) error

	Close() error
}
