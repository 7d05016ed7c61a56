package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciOnel/PCSHOP/internal/apperror"
	"github.com/luciOnel/PCSHOP/internal/auth"
	"github.com/luciOnel/PCSHOP/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory repository.CredentialStore. Email uniqueness is
// enforced under the mutex, like the unique index in the real store.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*model.User // keyed by email
	attempts []model.LoginAttempt
	nextID   int

	// calls records the order of store operations, e.g. "find", "create", "record".
	calls []string

	findErr   error
	createErr error
	recordErr error

	// hideOnFind makes FindUserByEmail report no user even when one exists,
	// to simulate a registration racing past the existence check.
	hideOnFind bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]*model.User)}
}

func (f *fakeStore) FindUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "find")

	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.hideOnFind {
		return nil, nil
	}
	u, ok := f.users[email]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) CreateUser(_ context.Context, name, email, passwordHash string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")

	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, exists := f.users[email]; exists {
		return nil, apperror.ConstraintViolation("email", email)
	}

	f.nextID++
	u := &model.User{
		ID:           fmt.Sprintf("user-%d", f.nextID),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	f.users[email] = u
	copied := *u
	return &copied, nil
}

func (f *fakeStore) RecordLoginAttempt(_ context.Context, a *model.LoginAttempt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "record")

	if f.recordErr != nil {
		return "", f.recordErr
	}
	a.ID = fmt.Sprintf("attempt-%d", len(f.attempts)+1)
	a.LoginAt = time.Now().UTC()
	f.attempts = append(f.attempts, *a)
	return a.ID, nil
}

func (f *fakeStore) attemptList() []model.LoginAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.LoginAttempt(nil), f.attempts...)
}

func (f *fakeStore) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStore) userCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

func newTestAuthService(t *testing.T, store *fakeStore) *AuthService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthService(store, auth.NewPasswordServiceForTest(), logger)
}

// brokenHasher fails every Hash call.
type brokenHasher struct{ *auth.PasswordService }

func (brokenHasher) Hash(string) (string, error) {
	return "", errors.New("entropy source unavailable")
}

// seedUser registers a user through the service so the stored hash is real.
func seedUser(t *testing.T, svc *AuthService, name, email, password string) *model.User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	return u
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want kind %v", err, kind)
	}
}

// =========================================================================
// Register
// =========================================================================

func TestRegister_Success(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)

	u, err := svc.Register(context.Background(), RegisterInput{
		Name: "Alice", Email: "alice@example.com", Password: "secret1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.False(t, u.CreatedAt.IsZero())

	assert.NotEqual(t, "secret1", u.PasswordHash)
	assert.NotContains(t, u.PasswordHash, "secret1")
	assert.NoError(t, auth.NewPasswordServiceForTest().Verify(u.PasswordHash, "secret1"))
}

func TestRegister_NormalizesEmail(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)

	u, err := svc.Register(context.Background(), RegisterInput{
		Name: "Bob", Email: "  Bob@Example.COM ", Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", u.Email)
}

func TestRegister_ValidationOrder(t *testing.T) {
	cases := []struct {
		name      string
		in        RegisterInput
		wantKind  error
		wantField string
	}{
		{"missing name", RegisterInput{Email: "a@b.co", Password: "secret1"}, apperror.ErrInvalidInput, "name"},
		{"blank name", RegisterInput{Name: "   ", Email: "a@b.co", Password: "secret1"}, apperror.ErrInvalidInput, "name"},
		{"missing email", RegisterInput{Name: "A", Password: "secret1"}, apperror.ErrInvalidInput, "email"},
		{"missing password", RegisterInput{Name: "A", Email: "a@b.co"}, apperror.ErrInvalidInput, "password"},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "secret1"}, apperror.ErrInvalidInput, "email"},
		{"email without tld", RegisterInput{Name: "A", Email: "a@b", Password: "secret1"}, apperror.ErrInvalidInput, "email"},
		{"email with inner space", RegisterInput{Name: "A", Email: "a b@c.de", Password: "secret1"}, apperror.ErrInvalidInput, "email"},
		{"short password", RegisterInput{Name: "A", Email: "a@b.co", Password: "12345"}, apperror.ErrWeakCredential, "password"},
		// Several violations: presence beats format beats strength.
		{"missing name and short password", RegisterInput{Email: "a@b.co", Password: "123"}, apperror.ErrInvalidInput, "name"},
		{"bad email and short password", RegisterInput{Name: "A", Email: "nope", Password: "123"}, apperror.ErrInvalidInput, "email"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestAuthService(t, store)

			_, err := svc.Register(context.Background(), tc.in)
			assertKind(t, err, tc.wantKind)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tc.wantField, appErr.Field)

			assert.Empty(t, store.callList(), "validation failures must not touch the store")
		})
	}
}

func TestRegister_MinPasswordLengthBoundary(t *testing.T) {
	svc := newTestAuthService(t, newFakeStore())

	short := strings.Repeat("p", MinPasswordLength-1)
	_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@b.co", Password: short})
	assertKind(t, err, apperror.ErrWeakCredential)
	assert.Contains(t, err.Error(), fmt.Sprintf("at least %d characters", MinPasswordLength))

	exact := strings.Repeat("p", MinPasswordLength)
	_, err = svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@b.co", Password: exact})
	assert.NoError(t, err)
}

func TestRegister_PasswordLengthCountsCharacters(t *testing.T) {
	svc := newTestAuthService(t, newFakeStore())

	// Six characters, twelve bytes.
	_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@b.co", Password: "пароль"})
	assert.NoError(t, err)
}

func TestRegister_PasswordOver72BytesIsWeak(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)

	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "A", Email: "a@b.co", Password: strings.Repeat("x", auth.MaxPasswordBytes+1),
	})
	assertKind(t, err, apperror.ErrWeakCredential)
	assert.Equal(t, 0, store.userCount())
}

func TestRegister_LongPasswordCheckedBeforeDuplicate(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)
	seedUser(t, svc, "Alice", "alice@example.com", "secret1")

	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "Alice", Email: "alice@example.com", Password: strings.Repeat("x", auth.MaxPasswordBytes+1),
	})
	assertKind(t, err, apperror.ErrWeakCredential)
}

func TestRegister_Duplicate(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)
	seedUser(t, svc, "Alice", "alice@example.com", "secret1")

	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "Other", Email: "ALICE@example.com", Password: "another1",
	})
	assertKind(t, err, apperror.ErrDuplicateAccount)
	assert.Equal(t, 1, store.userCount())
}

func TestRegister_DuplicateFromStoreConstraint(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)
	seedUser(t, svc, "Alice", "alice@example.com", "secret1")

	store.hideOnFind = true
	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "Racer", Email: "alice@example.com", Password: "secret1",
	})
	assertKind(t, err, apperror.ErrDuplicateAccount)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(context.Background(), RegisterInput{
				Name: fmt.Sprintf("user-%d", i), Email: "same@example.com", Password: "secret1",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperror.ErrDuplicateAccount):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, dupes)
	assert.Equal(t, 1, store.userCount())
}

func TestRegister_StorageFailures(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		store := newFakeStore()
		store.findErr = errors.New("disk on fire")
		svc := newTestAuthService(t, store)

		_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@b.co", Password: "secret1"})
		assertKind(t, err, apperror.ErrStorage)
	})

	t.Run("create", func(t *testing.T) {
		store := newFakeStore()
		store.createErr = apperror.Storage("create user", errors.New("disk full"))
		svc := newTestAuthService(t, store)

		_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@b.co", Password: "secret1"})
		assertKind(t, err, apperror.ErrStorage)
		assert.False(t, errors.Is(err, apperror.ErrDuplicateAccount))
	})
}

func TestRegister_HashFailureIsInternal(t *testing.T) {
	store := newFakeStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewAuthService(store, brokenHasher{auth.NewPasswordServiceForTest()}, logger)

	_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "a@b.co", Password: "secret1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy source unavailable")
	assert.False(t, errors.Is(err, apperror.ErrStorage), "a hashing failure is not a store failure")
	assert.False(t, errors.Is(err, apperror.ErrWeakCredential))
	assert.Equal(t, 0, store.userCount())
}

func TestRegister_WritesNoAuditRow(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)
	seedUser(t, svc, "Alice", "alice@example.com", "secret1")

	assert.Empty(t, store.attemptList())
}

// =========================================================================
// Login
// =========================================================================

func TestLogin_Success(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)
	registered := seedUser(t, svc, "Alice", "alice@example.com", "secret1")

	u, err := svc.Login(context.Background(), LoginInput{Email: " ALICE@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	attempts := store.attemptList()
	require.Len(t, attempts, 1)
	a := attempts[0]
	require.NotNil(t, a.UserID)
	assert.Equal(t, registered.ID, *a.UserID)
	assert.Equal(t, "alice@example.com", a.Email)
	assert.True(t, a.Success)
	assert.Nil(t, a.Details)
}

func TestLogin_WrongPassword(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)
	registered := seedUser(t, svc, "Alice", "alice@example.com", "secret1")

	u, err := svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "wrong-one"})
	assert.Nil(t, u)
	assertKind(t, err, apperror.ErrInvalidCredentials)

	attempts := store.attemptList()
	require.Len(t, attempts, 1)
	a := attempts[0]
	require.NotNil(t, a.UserID)
	assert.Equal(t, registered.ID, *a.UserID)
	assert.False(t, a.Success)
	require.NotNil(t, a.Details)
	assert.Equal(t, model.DetailWrongPassword, *a.Details)
}

func TestLogin_UnknownEmail(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)

	u, err := svc.Login(context.Background(), LoginInput{Email: "Ghost@Example.com", Password: "whatever"})
	assert.Nil(t, u)
	assertKind(t, err, apperror.ErrInvalidCredentials)

	attempts := store.attemptList()
	require.Len(t, attempts, 1)
	a := attempts[0]
	assert.Nil(t, a.UserID)
	assert.Equal(t, "ghost@example.com", a.Email)
	assert.False(t, a.Success)
	require.NotNil(t, a.Details)
	assert.Equal(t, model.DetailUserNotFound, *a.Details)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)
	seedUser(t, svc, "Alice", "alice@example.com", "secret1")

	_, wrongPassword := svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "nope-nope"})
	_, unknownEmail := svc.Login(context.Background(), LoginInput{Email: "bob@example.com", Password: "nope-nope"})

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())

	var a, b *apperror.AppError
	require.True(t, errors.As(wrongPassword, &a))
	require.True(t, errors.As(unknownEmail, &b))
	assert.Equal(t, a.Message, b.Message)
	assert.Equal(t, a.Field, b.Field)
}

func TestLogin_MissingFields(t *testing.T) {
	cases := []struct {
		name      string
		in        LoginInput
		wantField string
	}{
		{"no email", LoginInput{Password: "secret1"}, "email"},
		{"blank email", LoginInput{Email: "   ", Password: "secret1"}, "email"},
		{"no password", LoginInput{Email: "a@b.co"}, "password"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestAuthService(t, store)

			_, err := svc.Login(context.Background(), tc.in)
			assertKind(t, err, apperror.ErrInvalidInput)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tc.wantField, appErr.Field)

			assert.Empty(t, store.callList())
			assert.Empty(t, store.attemptList())
		})
	}
}

func TestLogin_AuditWrittenBeforeReturn(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)
	seedUser(t, svc, "Alice", "alice@example.com", "secret1")

	before := len(store.callList())
	_, err := svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"find", "record"}, store.callList()[before:])
}

func TestLogin_OneAuditRowPerAttempt(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)
	seedUser(t, svc, "Alice", "alice@example.com", "secret1")

	inputs := []LoginInput{
		{Email: "alice@example.com", Password: "secret1"},
		{Email: "alice@example.com", Password: "bad-password"},
		{Email: "nobody@example.com", Password: "secret1"},
		{Email: "alice@example.com", Password: "secret1"},
	}
	for i, in := range inputs {
		_, _ = svc.Login(context.Background(), in)
		assert.Len(t, store.attemptList(), i+1)
	}
}

func TestLogin_LookupFailureIsStorageError(t *testing.T) {
	store := newFakeStore()
	store.findErr = errors.New("connection reset")
	svc := newTestAuthService(t, store)

	_, err := svc.Login(context.Background(), LoginInput{Email: "a@b.co", Password: "secret1"})
	assertKind(t, err, apperror.ErrStorage)
	assert.False(t, errors.Is(err, apperror.ErrInvalidCredentials))
	assert.Empty(t, store.attemptList())
}

func TestLogin_UnusableHashIsWrongPassword(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store)
	_, err := store.CreateUser(context.Background(), "Broken", "broken@example.com", "not-a-bcrypt-hash")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), LoginInput{Email: "broken@example.com", Password: "secret1"})
	assertKind(t, err, apperror.ErrInvalidCredentials)

	attempts := store.attemptList()
	require.Len(t, attempts, 1)
	require.NotNil(t, attempts[0].Details)
	assert.Equal(t, model.DetailWrongPassword, *attempts[0].Details)
}

func TestLogin_AuditFailureKeepsOutcome(t *testing.T) {
	t.Run("accepted login still returns the user", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestAuthService(t, store)
		registered := seedUser(t, svc, "Alice", "alice@example.com", "secret1")
		store.recordErr = errors.New("audit table locked")

		u, err := svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "secret1"})
		require.NotNil(t, u)
		assert.Equal(t, registered.ID, u.ID)
		assertKind(t, err, apperror.ErrAuditWrite)
		assert.False(t, errors.Is(err, apperror.ErrInvalidCredentials))
	})

	t.Run("rejected login reports both", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestAuthService(t, store)
		seedUser(t, svc, "Alice", "alice@example.com", "secret1")
		store.recordErr = apperror.AuditWrite(errors.New("audit table locked"))

		u, err := svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "wrong-pass"})
		assert.Nil(t, u)
		assertKind(t, err, apperror.ErrInvalidCredentials)
		assertKind(t, err, apperror.ErrAuditWrite)
	})
}

func TestLogin_AuditFailureLoggedOnce(t *testing.T) {
	for name, password := range map[string]string{"accepted": "secret1", "rejected": "wrong-pass"} {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			var logs bytes.Buffer
			svc := NewAuthService(store, auth.NewPasswordServiceForTest(), slog.New(slog.NewTextHandler(&logs, nil)))
			seedUser(t, svc, "Alice", "alice@example.com", "secret1")
			store.recordErr = errors.New("audit table locked")

			_, err := svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: password})
			assertKind(t, err, apperror.ErrAuditWrite)
			assert.Equal(t, 1, strings.Count(logs.String(), "level=ERROR"))
		})
	}
}

// =========================================================================
// NormalizeEmail
// =========================================================================

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com":        "alice@example.com",
		"  Alice@Example.COM\t":    "alice@example.com",
		"":                         "",
		"   ":                      "",
		"MiXeD.Case@Sub.Domain.IO": "mixed.case@sub.domain.io",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
