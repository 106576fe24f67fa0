package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/shared"
	"golang.org/x/oauth2"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))
		s := models.NewSession()
		s.State = "abc"

		if err := repo.Create(s); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		if s.ID() == "" {
			t.Error("session ID should be set after creation")
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))
		s := models.NewSession()
		s.State = "state-1"
		if err := repo.Create(s); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		got, err := repo.Get(s.ID())
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if got.State != "state-1" {
			t.Errorf("expected state state-1, got %s", got.State)
		}
		if !got.Expiry.IsZero() {
			t.Errorf("expected zero expiry, got %v", got.Expiry)
		}
		if got.LoggedIn() {
			t.Error("expected new session to be logged out")
		}
	})

	t.Run("Update stores tokens", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))
		s := models.NewSession()
		if err := repo.Create(s); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
		s.SetToken(&oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: expiry})
		s.State = ""
		if err := repo.Update(s); err != nil {
			t.Fatalf("failed to update session: %v", err)
		}

		got, err := repo.Get(s.ID())
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if got.AccessToken != "access" || got.RefreshToken != "refresh" || got.TokenType != "Bearer" {
			t.Errorf("unexpected tokens: %+v", got.Token())
		}
		if !got.Expiry.Equal(expiry) {
			t.Errorf("expected expiry %v, got %v", expiry, got.Expiry)
		}
		if !got.LoggedIn() {
			t.Error("expected session to be logged in")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))
		s := models.NewSession()
		if err := repo.Create(s); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		if err := repo.Delete(s.ID()); err != nil {
			t.Fatalf("failed to delete session: %v", err)
		}
		if _, err := repo.Get(s.ID()); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
		if err := repo.Delete(s.ID()); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected second delete to fail with ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))

		anon := models.NewSession()
		authed := models.NewSession()
		authed.SetToken(&oauth2.Token{AccessToken: "a", RefreshToken: "r"})
		for _, s := range []*models.Session{anon, authed} {
			if err := repo.Create(s); err != nil {
				t.Fatalf("failed to create session: %v", err)
			}
		}

		all, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list sessions: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 sessions, got %d", len(all))
		}

		loggedIn, err := repo.List(map[string]any{"logged_in": true})
		if err != nil {
			t.Fatalf("failed to list sessions: %v", err)
		}
		if len(loggedIn) != 1 || loggedIn[0].ID() != authed.ID() {
			t.Errorf("expected only the authenticated session, got %d", len(loggedIn))
		}

		stale, err := repo.List(map[string]any{"updated_before": time.Now().Add(-time.Hour)})
		if err != nil {
			t.Fatalf("failed to list sessions: %v", err)
		}
		if len(stale) != 0 {
			t.Errorf("expected no stale sessions, got %d", len(stale))
		}
	})

	t.Run("Purge", func(t *testing.T) {
		repo := NewSessionRepository(setupTestDB(t))
		keep, gone := models.NewSession(), models.NewSession()
		for _, s := range []*models.Session{keep, gone} {
			if err := repo.Create(s); err != nil {
				t.Fatalf("failed to create session: %v", err)
			}
		}
		if err := repo.Delete(gone.ID()); err != nil {
			t.Fatalf("failed to delete session: %v", err)
		}

		n, err := repo.Purge(time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("failed to purge sessions: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 purged session, got %d", n)
		}
		if _, err := repo.Get(keep.ID()); err != nil {
			t.Errorf("expected recent session to survive, got %v", err)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		t.Run("Update missing session", func(t *testing.T) {
			repo := NewSessionRepository(setupTestDB(t))
			s := models.NewSession()
			s.SetID("missing")
			if err := repo.Update(s); !errors.Is(err, shared.ErrSessionNotFound) {
				t.Errorf("expected ErrSessionNotFound, got %v", err)
			}
		})

		t.Run("Validation", func(t *testing.T) {
			repo := NewSessionRepository(setupTestDB(t))
			s := models.NewSession()
			s.AccessToken = "token-without-type"
			if err := repo.Create(s); err == nil {
				t.Error("expected validation error")
			}
		})

		t.Run("Closed database", func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewSessionRepository(db)
			db.Close()

			if err := repo.Create(models.NewSession()); err == nil {
				t.Error("expected error creating session on closed database")
			}
			if _, err := repo.List(nil); err == nil {
				t.Error("expected error listing sessions on closed database")
			}
		})
	})
}

func newRecords(requestID string, digits ...int) []*models.PredictionRecord {
	names := []string{"CNN", "MLP", "LR"}
	recs := make([]*models.PredictionRecord, len(digits))
	for i, d := range digits {
		recs[i] = models.NewPredictionRecord(requestID, models.PredictionResult{
			Name:  names[i%len(names)],
			Guess: models.Prediction{Digit: d, Confidence: 0.5 + float64(i)/10},
		})
	}
	return recs
}

func TestPredictionRepository(t *testing.T) {
	t.Run("Create and Get", func(t *testing.T) {
		repo := NewPredictionRepository(setupTestDB(t))
		rec := newRecords("req-1", 7)[0]

		if err := repo.Create(rec); err != nil {
			t.Fatalf("failed to create prediction: %v", err)
		}

		got, err := repo.Get(rec.ID())
		if err != nil {
			t.Fatalf("failed to get prediction: %v", err)
		}
		if got.RequestID != "req-1" || got.Model != "CNN" || got.Digit != 7 || got.Confidence != 0.5 {
			t.Errorf("unexpected record %+v", got)
		}
	})

	t.Run("CreateAll", func(t *testing.T) {
		repo := NewPredictionRepository(setupTestDB(t))
		recs := newRecords("req-2", 1, 2, 3)

		if err := repo.CreateAll(recs); err != nil {
			t.Fatalf("failed to create predictions: %v", err)
		}
		for _, rec := range recs {
			if rec.ID() == "" {
				t.Error("expected IDs to be assigned")
			}
		}

		got, err := repo.List(map[string]any{"request_id": "req-2"})
		if err != nil {
			t.Fatalf("failed to list predictions: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("expected 3 records, got %d", len(got))
		}
	})

	t.Run("CreateAll is atomic", func(t *testing.T) {
		repo := NewPredictionRepository(setupTestDB(t))
		recs := newRecords("req-3", 1, 2)
		recs[1].Digit = 11

		if err := repo.CreateAll(recs); err == nil {
			t.Fatal("expected validation error")
		}
		got, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list predictions: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no records, got %d", len(got))
		}
	})

	t.Run("List filters", func(t *testing.T) {
		repo := NewPredictionRepository(setupTestDB(t))
		if err := repo.CreateAll(newRecords("a", 1, 2, 3)); err != nil {
			t.Fatalf("failed to create predictions: %v", err)
		}
		if err := repo.CreateAll(newRecords("b", 4, 5, 6)); err != nil {
			t.Fatalf("failed to create predictions: %v", err)
		}

		byModel, err := repo.List(map[string]any{"model": "MLP"})
		if err != nil {
			t.Fatalf("failed to list predictions: %v", err)
		}
		if len(byModel) != 2 {
			t.Errorf("expected 2 MLP records, got %d", len(byModel))
		}

		limited, err := repo.List(map[string]any{"limit": 4})
		if err != nil {
			t.Fatalf("failed to list predictions: %v", err)
		}
		if len(limited) != 4 {
			t.Errorf("expected 4 records, got %d", len(limited))
		}
		if limited[0].RequestID != "b" {
			t.Errorf("expected newest records first, got %s", limited[0].RequestID)
		}

		future, err := repo.List(map[string]any{"since": time.Now().Add(time.Hour)})
		if err != nil {
			t.Fatalf("failed to list predictions: %v", err)
		}
		if len(future) != 0 {
			t.Errorf("expected no records, got %d", len(future))
		}
	})

	t.Run("Update and Delete", func(t *testing.T) {
		repo := NewPredictionRepository(setupTestDB(t))
		rec := newRecords("req", 3)[0]
		if err := repo.Create(rec); err != nil {
			t.Fatalf("failed to create prediction: %v", err)
		}

		rec.Digit = 8
		if err := repo.Update(rec); err != nil {
			t.Fatalf("failed to update prediction: %v", err)
		}
		got, _ := repo.Get(rec.ID())
		if got.Digit != 8 {
			t.Errorf("expected digit 8, got %d", got.Digit)
		}

		if err := repo.Delete(rec.ID()); err != nil {
			t.Fatalf("failed to delete prediction: %v", err)
		}
		if _, err := repo.Get(rec.ID()); err == nil {
			t.Error("expected error getting deleted prediction")
		}
		if err := repo.Delete(rec.ID()); err == nil {
			t.Error("expected error deleting twice")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		repo := NewPredictionRepository(setupTestDB(t))
		if err := repo.CreateAll(newRecords("a", 1, 2, 3, 4)); err != nil {
			t.Fatalf("failed to create predictions: %v", err)
		}

		stats, err := repo.Stats()
		if err != nil {
			t.Fatalf("failed to get stats: %v", err)
		}
		if len(stats) != 3 {
			t.Fatalf("expected 3 models, got %d", len(stats))
		}
		if stats[0].Model != "CNN" || stats[0].Count != 2 {
			t.Errorf("unexpected CNN stats %+v", stats[0])
		}
		if want := (0.5 + 0.8) / 2; stats[0].MeanConfidence < want-1e-9 || stats[0].MeanConfidence > want+1e-9 {
			t.Errorf("expected mean %v, got %v", want, stats[0].MeanConfidence)
		}
	})
}
