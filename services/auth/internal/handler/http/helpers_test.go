package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/henriquegoncalvesdev/credipesca/pkg/health"
	"github.com/henriquegoncalvesdev/credipesca/pkg/httputil"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/auth"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/service"
)

// --- In-memory directory ---

type memDirectory struct {
	byID map[string]*domain.User
	err  error
}

func newMemDirectory() *memDirectory {
	return &memDirectory{byID: make(map[string]*domain.User)}
}

func (d *memDirectory) GetByID(_ context.Context, id string) (*domain.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	u, ok := d.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *memDirectory) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if d.err != nil {
		return nil, d.err
	}
	for _, u := range d.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (d *memDirectory) Create(_ context.Context, user *domain.User) error {
	for _, u := range d.byID {
		if u.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	cp := *user
	d.byID[user.ID] = &cp
	return nil
}

func (d *memDirectory) UpdatePassword(_ context.Context, id, hash string) error {
	u, ok := d.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (d *memDirectory) SetActive(_ context.Context, id string, active bool) (*domain.User, error) {
	u, ok := d.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.IsActive = active
	cp := *u
	return &cp, nil
}

func (d *memDirectory) List(_ context.Context, offset, limit int) ([]domain.User, int, error) {
	all := make([]domain.User, 0, len(d.byID))
	for _, u := range d.byID {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, len(all), nil
	}
	return all[offset:min(offset+limit, len(all))], len(all), nil
}

type nopEvents struct{}

func (nopEvents) PublishUserRegistered(context.Context, *domain.User) error { return nil }
func (nopEvents) PublishPasswordResetRequested(context.Context, *domain.User, string, time.Time) error {
	return nil
}
func (nopEvents) PublishPasswordChanged(context.Context, *domain.User, string) error   { return nil }
func (nopEvents) PublishUserStatusChanged(context.Context, *domain.User, string) error { return nil }

// --- Test fixture ---

type fixture struct {
	dir    *memDirectory
	codec  *auth.TokenCodec
	hasher *auth.BcryptHasher
	router http.Handler
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newFixture(t *testing.T, opts ...func(*RouterConfig)) *fixture {
	t.Helper()

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  "handler-test-access-secret",
		RefreshSecret: "handler-test-refresh-secret",
		Issuer:        "credipesca-auth",
	})
	require.NoError(t, err)

	dir := newMemDirectory()
	hasher := auth.NewBcryptHasher(auth.WithCost(bcrypt.MinCost))
	logger := newTestLogger()

	svc, err := service.NewAuthService(dir, hasher, codec, nopEvents{}, logger)
	require.NoError(t, err)

	cfg := RouterConfig{
		Service:       svc,
		Health:        health.NewHandler("auth"),
		Logger:        logger,
		CORSOrigins:   []string{"http://localhost:3000"},
		InternalCIDRs: []string{"127.0.0.0/8"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	router := NewRouter(cfg)

	return &fixture{dir: dir, codec: codec, hasher: hasher, router: router}
}

// seedUser stores a user with the given role and returns it with an access token.
func (f *fixture) seedUser(t *testing.T, email, role string) (*domain.User, string) {
	t.Helper()
	hash, err := f.hasher.Hash("Secret123")
	require.NoError(t, err)

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         "Seeded " + role,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.dir.Create(context.Background(), user))

	token, _, err := f.codec.Issue(user.ID, auth.PurposeAccess, time.Minute)
	require.NoError(t, err)
	return user, token
}

func (f *fixture) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// decodeEnvelope decodes the response envelope, leaving Data as raw JSON.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (httputil.Response, json.RawMessage) {
	t.Helper()
	var env struct {
		httputil.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Response, env.Data
}
