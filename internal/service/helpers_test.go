package service_test

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dermascan/dermascan/internal/auth"
	"github.com/dermascan/dermascan/internal/imaging"
	"github.com/dermascan/dermascan/internal/inference"
	"github.com/dermascan/dermascan/internal/metrics"
	"github.com/dermascan/dermascan/internal/model"
	"github.com/dermascan/dermascan/internal/repository"
	"github.com/dermascan/dermascan/internal/service"
	"github.com/dermascan/dermascan/internal/testutil"
)

var testParams = auth.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// testBudget is the inference budget used by newEnv.
const testBudget = 200 * time.Millisecond

type fakeClassifier struct {
	mu          sync.Mutex
	calls       int
	diagnosis   *model.Diagnosis
	err         error
	block       bool
	sawDeadline bool
}

func (f *fakeClassifier) Analyze(ctx context.Context, _ inference.Image) (*model.Diagnosis, error) {
	f.mu.Lock()
	f.calls++
	_, f.sawDeadline = ctx.Deadline()
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	d := *f.diagnosis
	return &d, nil
}

func (f *fakeClassifier) Model() string { return "fake-model" }

func (f *fakeClassifier) SawDeadline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sawDeadline
}

func (f *fakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type env struct {
	repo       *repository.Repository
	accounts   *service.AccountService
	analysis   *service.AnalysisService
	classifier *fakeClassifier
	metrics    *metrics.InMemoryRecorder
	tokens     *auth.TokenManager
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()

	repo := testutil.NewRepository(t)
	rec := metrics.NewInMemory()
	tokens := auth.NewTokenManager("test-secret-0123456789", time.Hour)

	accounts, err := service.NewAccountService(repo, tokens, auth.NewHasher(testParams), rec, quietLogger())
	require.NoError(t, err)

	classifier := &fakeClassifier{diagnosis: testutil.NewTestDiagnosis("Eczema", 0.82)}
	analysis := service.NewAnalysisService(repo, classifier, testBudget, imaging.NewValidator(64*1024), nil, rec, quietLogger())

	return &env{
		repo:       repo,
		accounts:   accounts,
		analysis:   analysis,
		classifier: classifier,
		metrics:    rec,
		tokens:     tokens,
	}
}

// login registers a user and returns its session.
func (e *env) login(t *testing.T, username string) *model.Session {
	t.Helper()
	ctx := context.Background()

	_, err := e.accounts.Register(ctx, service.Credentials{Username: username, Password: "secret123"})
	require.NoError(t, err)

	res, err := e.accounts.Login(ctx, service.Credentials{Username: username, Password: "secret123"})
	require.NoError(t, err)

	session, err := e.accounts.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	return session
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}
