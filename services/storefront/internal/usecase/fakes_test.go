package usecase

import (
	"context"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/storefront/services/storefront/internal/config"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/model"
	"github.com/vasapolrittideah/storefront/services/storefront/internal/repository"
	"github.com/vasapolrittideah/storefront/shared/notifier"
	"github.com/vasapolrittideah/storefront/shared/security"
)

type fakeAccountRepository struct {
	mu       sync.Mutex
	accounts map[bson.ObjectID]*model.Account
	err      error
	createFn func(*model.Account) error
}

func newFakeAccountRepository() *fakeAccountRepository {
	return &fakeAccountRepository{accounts: make(map[bson.ObjectID]*model.Account)}
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	if a.ResetTokenExpiresAt != nil {
		t := *a.ResetTokenExpiresAt
		c.ResetTokenExpiresAt = &t
	}
	c.Cart.Items = append([]model.CartItem{}, a.Cart.Items...)
	return &c
}

func (r *fakeAccountRepository) CreateAccount(_ context.Context, account *model.Account) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	if r.createFn != nil {
		if err := r.createFn(account); err != nil {
			return nil, err
		}
	}

	for _, a := range r.accounts {
		if a.Email == account.Email {
			return nil, mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
		}
	}

	account.ID = bson.NewObjectID()
	account.Version = 1
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	r.accounts[account.ID] = cloneAccount(account)

	return account, nil
}

func (r *fakeAccountRepository) GetAccount(_ context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrInvalidID
	}

	a, ok := r.accounts[objectID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return cloneAccount(a), nil
}

func (r *fakeAccountRepository) GetAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	for _, a := range r.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *fakeAccountRepository) GetAccountByResetToken(_ context.Context, tokenHash string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	for _, a := range r.accounts {
		if tokenHash != "" && a.ResetTokenHash == tokenHash {
			return cloneAccount(a), nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (r *fakeAccountRepository) SetResetToken(
	_ context.Context,
	id string,
	params repository.SetResetTokenParams,
) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrInvalidID
	}

	a, ok := r.accounts[objectID]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}

	expiresAt := params.ExpiresAt
	a.ResetTokenHash = params.TokenHash
	a.ResetTokenExpiresAt = &expiresAt
	return cloneAccount(a), nil
}

func (r *fakeAccountRepository) ConsumeResetToken(
	_ context.Context,
	id string,
	params repository.ConsumeResetTokenParams,
) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, repository.ErrInvalidID
	}

	a, ok := r.accounts[objectID]
	if !ok || a.ResetTokenHash != params.TokenHash || a.ResetTokenExpiresAt == nil ||
		!a.ResetTokenExpiresAt.After(params.Now) {
		return nil, mongo.ErrNoDocuments
	}

	a.PasswordHash = params.PasswordHash
	a.ResetTokenHash = ""
	a.ResetTokenExpiresAt = nil
	a.Version++
	return cloneAccount(a), nil
}

func (r *fakeAccountRepository) ClearExpiredResetTokens(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return 0, r.err
	}

	var n int64
	for _, a := range r.accounts {
		if a.ResetTokenExpiresAt != nil && !a.ResetTokenExpiresAt.After(cutoff) {
			a.ResetTokenHash = ""
			a.ResetTokenExpiresAt = nil
			n++
		}
	}
	return n, nil
}

func (r *fakeAccountRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

func (r *fakeAccountRepository) failWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

type fakeSessionRepository struct {
	mu        sync.Mutex
	sessions  map[string]model.Session
	deleteErr error
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{sessions: make(map[string]model.Session)}
}

func (r *fakeSessionRepository) GetSession(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	s = s.MarkPersisted()
	return &s, nil
}

func (r *fakeSessionRepository) SaveSession(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	*session = session.MarkPersisted()
	r.sessions[session.ID] = *session
	return nil
}

func (r *fakeSessionRepository) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepository) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

type fakeDispatcher struct {
	mu       sync.Mutex
	messages []notifier.Message
	err      error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, msg notifier.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, msg)
	return nil
}

func (d *fakeDispatcher) sent() []notifier.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notifier.Message{}, d.messages...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var resetLinkPattern = regexp.MustCompile(`/new-password/([0-9a-f]{64})`)

// tokenFromMessage extracts the reset token from the most recent reset email.
func tokenFromMessage(t *testing.T, d *fakeDispatcher) string {
	t.Helper()

	msgs := d.sent()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Subject != resetSubject {
			continue
		}
		m := resetLinkPattern.FindStringSubmatch(msgs[i].HTMLBody)
		require.Len(t, m, 2, "reset email does not contain a token link")
		return m[1]
	}

	t.Fatal("no reset email was dispatched")
	return ""
}

type testEnv struct {
	accounts   *fakeAccountRepository
	sessions   *fakeSessionRepository
	dispatcher *fakeDispatcher
	clock      *fakeClock
	auth       *authUsecase
	reset      *passwordResetUsecase
}

func newTestEnv() *testEnv {
	logger := zerolog.New(io.Discard)
	hasher := security.NewHasher(security.HasherConfig{TimeCost: 1, MemoryCost: 8 * 1024, Parallelism: 1})
	cfg := &config.StorefrontConfig{
		AppPasswordResetURL: "http://localhost:3000/new-password",
		Session:             config.SessionConfig{TTL: time.Hour},
		Token: config.TokenConfig{
			PasswordResetTokenExpiresIn: 24 * time.Hour,
			PurgeRetention:              7 * 24 * time.Hour,
		},
	}

	env := &testEnv{
		accounts:   newFakeAccountRepository(),
		sessions:   newFakeSessionRepository(),
		dispatcher: &fakeDispatcher{},
		clock:      &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	env.auth = NewAuthUsecase(&logger, env.accounts, env.sessions, hasher, env.dispatcher, cfg).(*authUsecase)
	env.auth.now = env.clock.Now
	env.reset = NewPasswordResetUsecase(&logger, env.accounts, hasher, env.dispatcher, cfg).(*passwordResetUsecase)
	env.reset.now = env.clock.Now

	return env
}

func (e *testEnv) register(t *testing.T, email, password string) *model.Account {
	t.Helper()

	account, err := e.auth.Register(context.Background(), RegisterParams{
		Email:           email,
		Password:        password,
		ConfirmPassword: password,
	})
	require.NoError(t, err)
	return account
}

func (e *testEnv) login(email, password string) (*SessionGrant, error) {
	return e.auth.Login(context.Background(), model.NewAnonymousSession("anon", time.Hour), LoginParams{
		Email:    email,
		Password: password,
	})
}
