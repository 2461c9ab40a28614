package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/config"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/model"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/payload"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/repository"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/usecase"
	"github.com/vasapolrittideah/storefront/shared/auth"
	"github.com/vasapolrittideah/storefront/shared/notifier"
	"github.com/vasapolrittideah/storefront/shared/security"
)

type memoryAccountRepository struct {
	mu       sync.Mutex
	accounts map[bson.ObjectID]model.Account
}

func (r *memoryAccountRepository) CreateAccount(_ context.Context, account *model.Account) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.Email == account.Email {
			return nil, mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
		}
	}

	account.ID = bson.NewObjectID()
	account.Version = 1
	r.accounts[account.ID] = *account
	return account, nil
}

func (r *memoryAccountRepository) GetAccount(_ context.Context, id string) (*model.Account, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[objectID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return &a, nil
}

func (r *memoryAccountRepository) GetAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	return r.find(func(a model.Account) bool { return a.Email == email })
}

func (r *memoryAccountRepository) GetAccountByResetToken(_ context.Context, tokenHash string) (*model.Account, error) {
	return r.find(func(a model.Account) bool { return a.ResetTokenHash == tokenHash })
}

func (r *memoryAccountRepository) SetResetToken(
	_ context.Context,
	id string,
	params repository.SetResetTokenParams,
) (*model.Account, error) {
	return r.update(id, func(a *model.Account) bool {
		expiresAt := params.ExpiresAt
		a.ResetTokenHash = params.TokenHash
		a.ResetTokenExpiresAt = &expiresAt
		return true
	})
}

func (r *memoryAccountRepository) ConsumeResetToken(
	_ context.Context,
	id string,
	params repository.ConsumeResetTokenParams,
) (*model.Account, error) {
	return r.update(id, func(a *model.Account) bool {
		if a.ResetTokenHash != params.TokenHash || a.ResetTokenExpired(params.Now) {
			return false
		}
		a.PasswordHash = params.PasswordHash
		a.ResetTokenHash = ""
		a.ResetTokenExpiresAt = nil
		a.Version++
		return true
	})
}

func (r *memoryAccountRepository) ClearExpiredResetTokens(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memoryAccountRepository) find(match func(model.Account) bool) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if match(a) {
			return &a, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *memoryAccountRepository) update(id string, apply func(*model.Account) bool) (*model.Account, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[objectID]
	if !ok || !apply(&a) {
		return nil, mongo.ErrNoDocuments
	}
	r.accounts[objectID] = a
	return &a, nil
}

type capturingDispatcher struct {
	mu       sync.Mutex
	messages []notifier.Message
}

func (d *capturingDispatcher) Dispatch(_ context.Context, msg notifier.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.messages = append(d.messages, msg)
	return nil
}

var resetTokenPattern = regexp.MustCompile(`/new-password/([0-9a-f]+)"`)

func (d *capturingDispatcher) lastResetToken(t *testing.T) string {
	t.Helper()

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := len(d.messages) - 1; i >= 0; i-- {
		if m := resetTokenPattern.FindStringSubmatch(d.messages[i].HTMLBody); m != nil {
			return m[1]
		}
	}

	t.Fatal("no reset email was dispatched")
	return ""
}

type flowServer struct {
	*testServer
	dispatcher *capturingDispatcher
}

func newFlowServer(t *testing.T) *flowServer {
	t.Helper()

	v, err := payload.NewValidator()
	require.NoError(t, err)

	logger := zerolog.New(io.Discard)
	cfg := &config.StorefrontConfig{
		ServiceName:         "storefront",
		AppPasswordResetURL: "http://localhost:3000/new-password",
		Session:             config.SessionConfig{CookieName: "sid", TTL: time.Hour},
		Token: config.TokenConfig{
			Issuer:                      "storefront",
			PasswordResetTokenExpiresIn: 24 * time.Hour,
		},
	}

	accounts := &memoryAccountRepository{accounts: make(map[bson.ObjectID]model.Account)}
	sessions := &memorySessionRepository{sessions: make(map[string]model.Session)}
	dispatcher := &capturingDispatcher{}
	hasher := security.NewHasher(security.HasherConfig{TimeCost: 1, MemoryCost: 8 * 1024, Parallelism: 1})

	router := NewRouter(Dependencies{
		Logger:               &logger,
		AuthUsecase:          usecase.NewAuthUsecase(&logger, accounts, sessions, hasher, dispatcher, cfg),
		PasswordResetUsecase: usecase.NewPasswordResetUsecase(&logger, accounts, hasher, dispatcher, cfg),
		SessionRepo:          sessions,
		JWTAuth:              auth.NewJWTAuthenticator(cfg.ServiceName, cfg.Token.Issuer, "test-secret"),
		Validator:            v,
		Config:               cfg,
	})

	return &flowServer{
		testServer: &testServer{router: router, sessions: sessions},
		dispatcher: dispatcher,
	}
}

func (s *flowServer) currentSession(t *testing.T, cookie *http.Cookie) payload.SessionResponse {
	t.Helper()

	rec := s.do(http.MethodGet, "/session", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp payload.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAccountLifecycle(t *testing.T) {
	srv := newFlowServer(t)

	rec := srv.do(http.MethodPost, "/signup", `{"email":" A@x.com ","password":"secret1","confirm_password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var signup payload.SignupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))
	assert.Equal(t, "a@x.com", signup.Email)

	rec = srv.do(http.MethodPost, "/login", `{"email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	first := sessionCookie(rec)
	require.NotNil(t, first)

	session := srv.currentSession(t, first)
	assert.True(t, session.IsAuthenticated)
	assert.Equal(t, signup.AccountID, session.AccountID)
	assert.Equal(t, "a@x.com", session.Email)

	// Logging in again from an authenticated session rotates it and drops the old one.
	rec = srv.do(http.MethodPost, "/login", `{"email":"a@x.com","password":"secret1"}`, first)
	require.Equal(t, http.StatusOK, rec.Code)
	second := sessionCookie(rec)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)

	assert.False(t, srv.currentSession(t, first).IsAuthenticated)
	assert.True(t, srv.currentSession(t, second).IsAuthenticated)

	rec = srv.do(http.MethodPost, "/reset", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	token := srv.dispatcher.lastResetToken(t)

	rec = srv.do(http.MethodGet, "/new-password/"+token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var check payload.ResetTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	assert.Equal(t, signup.AccountID, check.AccountID)

	body := `{"account_id":"` + check.AccountID + `","token":"` + token +
		`","new_password":"newpass","confirm_password":"newpass"}`
	rec = srv.do(http.MethodPost, "/new-password", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodPost, "/new-password", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "token_invalid", decodeError(t, rec).Code)

	rec = srv.do(http.MethodPost, "/login", `{"email":"a@x.com","password":"secret1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(http.MethodPost, "/login", `{"email":"a@x.com","password":"newpass"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodPost, "/logout", "", second)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, srv.currentSession(t, second).IsAuthenticated)
}
