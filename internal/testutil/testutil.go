// Package testutil holds shared helpers for package tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dermascan/dermascan/internal/model"
	"github.com/dermascan/dermascan/internal/repository"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// NewRepository opens a fresh, migrated database file under t.TempDir.
func NewRepository(t testing.TB) *repository.Repository {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "open test database")
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

// UniqueID returns a fresh ULID string.
func UniqueID() string {
	return ulid.Make().String()
}

// NewTestUser returns an unsaved user with a placeholder hash.
func NewTestUser(t testing.TB, username string) *model.User {
	t.Helper()
	return &model.User{
		ID:           UniqueID(),
		Username:     username,
		PasswordHash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2U",
		CreatedAt:    time.Now().UTC(),
	}
}

// CreateTestUser persists a user built by NewTestUser.
func CreateTestUser(t testing.TB, repo *repository.Repository, username string) *model.User {
	t.Helper()
	user := NewTestUser(t, username)
	require.NoError(t, repo.CreateUser(context.Background(), user), "create test user")
	return user
}

// NewTestDiagnosis returns a well-formed diagnosis.
func NewTestDiagnosis(disease string, confidence float64) *model.Diagnosis {
	return &model.Diagnosis{
		Disease:     disease,
		Confidence:  confidence,
		Description: "A common skin condition.",
		Symptoms:    []string{"redness", "itching"},
		Treatments:  []string{"Keep the area moisturised", "Topical corticosteroid"},
		MedicalCare: []string{"See a dermatologist if it spreads"},
		Disclaimer:  model.Disclaimer,
	}
}

// NewTestHistoryRecord returns an unsaved history record owned by userID.
func NewTestHistoryRecord(userID string, createdAt time.Time) *model.HistoryRecord {
	d := NewTestDiagnosis("Eczema", 0.82)
	uid := userID
	return &model.HistoryRecord{
		ID:             UniqueID(),
		UserID:         &uid,
		ImageName:      "arm.jpg",
		ImageRef:       "sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		PredictedLabel: d.Disease,
		Confidence:     d.Confidence,
		TreatmentText:  d.TreatmentText(),
		Result:         d,
		CreatedAt:      createdAt.UTC(),
	}
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// OwnerOf returns the record's user id, or "" for an anonymous record.
func OwnerOf(rec *model.HistoryRecord) string {
	if rec == nil || rec.UserID == nil {
		return ""
	}
	return *rec.UserID
}
