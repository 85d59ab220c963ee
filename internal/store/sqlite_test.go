package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roelvdh/marktwatch/internal/config"
	"github.com/roelvdh/marktwatch/pkg/models"
)

func testStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func listing(target, title, price, url string) models.Listing {
	return models.Listing{
		Target:     target,
		Title:      title,
		Price:      price,
		URL:        url,
		Attributes: []string{"Conditie: Gebruikt"},
	}
}

func TestReplaceListings_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	in := []models.Listing{
		listing("bikes", "Gazelle", "€250", "https://site.example/a"),
		listing("bikes", "Batavus", "€180", "https://site.example/b"),
	}
	n, err := s.ReplaceListings(ctx, "bikes", in)
	if err != nil {
		t.Fatalf("ReplaceListings failed: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	got, err := s.ListingsByTarget(ctx, "bikes")
	if err != nil {
		t.Fatalf("ListingsByTarget failed: %v", err)
	}
	ignore := cmpopts.IgnoreFields(models.Listing{}, "ID", "CreatedAt")
	if diff := cmp.Diff(in, got, ignore); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}
	for _, l := range got {
		if l.CreatedAt.IsZero() {
			t.Errorf("CreatedAt not stamped for %q", l.Title)
		}
	}
}

func TestReplaceListings_ClearsPreviousSet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.ReplaceListings(ctx, "bikes", []models.Listing{
		listing("bikes", "Oud", "€10", "https://site.example/old"),
	})
	if err != nil {
		t.Fatalf("first replace failed: %v", err)
	}

	_, err = s.ReplaceListings(ctx, "bikes", []models.Listing{
		listing("bikes", "Nieuw", "€20", "https://site.example/new"),
	})
	if err != nil {
		t.Fatalf("second replace failed: %v", err)
	}

	got, err := s.ListingsByTarget(ctx, "bikes")
	if err != nil {
		t.Fatalf("ListingsByTarget failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Nieuw" {
		t.Errorf("previous set not cleared: %+v", got)
	}
}

func TestReplaceListings_SupersetSurvives(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := listing("bikes", "Gazelle", "€250", "https://site.example/a")
	b := listing("bikes", "Batavus", "€180", "https://site.example/b")
	c := listing("bikes", "Sparta", "€95", "https://site.example/c")

	if _, err := s.ReplaceListings(ctx, "bikes", []models.Listing{a, b}); err != nil {
		t.Fatalf("first replace failed: %v", err)
	}
	n, err := s.ReplaceListings(ctx, "bikes", []models.Listing{a, b, c})
	if err != nil {
		t.Fatalf("second replace failed: %v", err)
	}
	if n != 3 {
		t.Errorf("inserted = %d, want 3 (items present before the replace must survive it)", n)
	}

	got, err := s.ListingsByTarget(ctx, "bikes")
	if err != nil {
		t.Fatalf("ListingsByTarget failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("stored = %d listings, want 3", len(got))
	}
}

func TestReplaceListings_DedupsWithinBatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	dup := listing("bikes", "Gazelle", "€250", "https://site.example/a")
	n, err := s.ReplaceListings(ctx, "bikes", []models.Listing{dup, dup, dup})
	if err != nil {
		t.Fatalf("ReplaceListings failed: %v", err)
	}
	if n != 1 {
		t.Errorf("inserted = %d, want 1", n)
	}
}

func TestReplaceListings_TargetsAreIsolated(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.ReplaceListings(ctx, "bikes", []models.Listing{
		listing("bikes", "Gazelle", "€250", "https://site.example/a"),
	}); err != nil {
		t.Fatalf("bikes replace failed: %v", err)
	}
	if _, err := s.ReplaceListings(ctx, "lamps", []models.Listing{
		listing("lamps", "Artemide", "€120", "https://site.example/l"),
	}); err != nil {
		t.Fatalf("lamps replace failed: %v", err)
	}

	// Replacing bikes must not touch lamps.
	if _, err := s.ReplaceListings(ctx, "bikes", nil); err != nil {
		t.Fatalf("empty replace failed: %v", err)
	}
	lamps, err := s.ListingsByTarget(ctx, "lamps")
	if err != nil {
		t.Fatalf("ListingsByTarget failed: %v", err)
	}
	if len(lamps) != 1 {
		t.Errorf("lamps = %d listings, want 1", len(lamps))
	}
	bikes, err := s.ListingsByTarget(ctx, "bikes")
	if err != nil {
		t.Fatalf("ListingsByTarget failed: %v", err)
	}
	if len(bikes) != 0 {
		t.Errorf("bikes = %d listings, want 0", len(bikes))
	}
}

func TestAllListings_NewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	old := listing("bikes", "Oud", "€10", "https://site.example/old")
	old.CreatedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.ReplaceListings(ctx, "bikes", []models.Listing{old}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	recent := listing("lamps", "Nieuw", "€20", "https://site.example/new")
	recent.CreatedAt = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	if _, err := s.ReplaceListings(ctx, "lamps", []models.Listing{recent}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	all, err := s.AllListings(ctx)
	if err != nil {
		t.Fatalf("AllListings failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("AllListings = %d, want 2", len(all))
	}
	if all[0].Title != "Nieuw" || all[1].Title != "Oud" {
		t.Errorf("Order wrong: %q then %q", all[0].Title, all[1].Title)
	}
}

func TestLatestListingTime(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	latest, err := s.LatestListingTime(ctx)
	if err != nil {
		t.Fatalf("LatestListingTime failed: %v", err)
	}
	if !latest.IsZero() {
		t.Errorf("empty store should report zero time, got %v", latest)
	}

	stamp := time.Date(2026, 8, 20, 12, 30, 0, 0, time.UTC)
	l := listing("bikes", "Gazelle", "€250", "https://site.example/a")
	l.CreatedAt = stamp
	if _, err := s.ReplaceListings(ctx, "bikes", []models.Listing{l}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	latest, err = s.LatestListingTime(ctx)
	if err != nil {
		t.Fatalf("LatestListingTime failed: %v", err)
	}
	if !latest.Equal(stamp) {
		t.Errorf("LatestListingTime = %v, want %v", latest, stamp)
	}
}

func TestSettings_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var missing config.Email
	found, err := s.GetSetting(ctx, config.KeyEmail, &missing)
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if found {
		t.Error("unwritten key reported as found")
	}

	in := config.Email{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "watch@example.com",
		To:      "me@example.com",
	}
	if err := s.SetSetting(ctx, config.KeyEmail, in); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	var out config.Email
	found, err = s.GetSetting(ctx, config.KeyEmail, &out)
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if !found {
		t.Fatal("written key not found")
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("Settings round trip mismatch (-want +got):\n%s", diff)
	}

	// Overwrite wins.
	in.Host = "smtp2.example.com"
	if err := s.SetSetting(ctx, config.KeyEmail, in); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}
	if _, err := s.GetSetting(ctx, config.KeyEmail, &out); err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if out.Host != "smtp2.example.com" {
		t.Errorf("Host = %q after overwrite", out.Host)
	}
}
