package testsupport

import (
	"context"
	"testing"

	"loreweave/internal/campaign"
	"loreweave/internal/config"
	"loreweave/internal/jobs"
	"loreweave/internal/storage"
)

// MustOpenDB opens the service database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// MustOpenStore opens a jobs.Store backed by a fresh database.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()
	return jobs.NewStore(MustOpenDB(t, cfg))
}

// Fixture bundles the stores most tests need over one database.
type Fixture struct {
	Config   *config.Config
	DB       *storage.DB
	Jobs     *jobs.Store
	Campaign *campaign.SQLiteStore
}

// NewFixture opens a database and both stores.
func NewFixture(t testing.TB, opts ...ConfigOption) *Fixture {
	t.Helper()
	cfg := NewConfig(t, opts...)
	db := MustOpenDB(t, cfg)
	return &Fixture{
		Config:   cfg,
		DB:       db,
		Jobs:     jobs.NewStore(db),
		Campaign: campaign.NewSQLiteStore(db),
	}
}

// NewEntity creates a campaign entity for tests.
func NewEntity(t testing.TB, store campaign.EntityStore, campaignID int64, kind, name string, aliases ...string) *campaign.Entity {
	t.Helper()

	entity, err := store.CreateEntity(context.Background(), campaign.NewEntity{
		CampaignID: campaignID,
		Type:       kind,
		Name:       name,
		Aliases:    aliases,
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	return entity
}
