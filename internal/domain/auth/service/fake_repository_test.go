package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/auth/repository"
)

type fakeEmailToken struct {
	userID    uuid.UUID
	purpose   string
	expiresAt time.Time
	used      bool
}

type fakeSession struct {
	session repository.Session
	revoked bool
}

// fakeAuthRepository is an in-memory AuthRepository.
type fakeAuthRepository struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*repository.User
	sessions map[string]*fakeSession
	tokens   map[string]*fakeEmailToken
}

func newFakeAuthRepository() *fakeAuthRepository {
	return &fakeAuthRepository{
		users:    make(map[uuid.UUID]*repository.User),
		sessions: make(map[string]*fakeSession),
		tokens:   make(map[string]*fakeEmailToken),
	}
}

func (f *fakeAuthRepository) CreateUser(_ context.Context, p repository.CreateUserParams) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, p.Email) {
			return nil, common.ErrUserAlreadyExists
		}
	}
	now := time.Now()
	u := &repository.User{
		ID:             uuid.New(),
		Email:          p.Email,
		PasswordHash:   p.PasswordHash,
		DisplayName:    p.DisplayName,
		Currency:       p.Currency,
		Provider:       p.Provider,
		ProviderUserID: p.ProviderUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.EmailVerified {
		u.EmailVerifiedAt = &now
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeAuthRepository) GetUserByID(_ context.Context, id uuid.UUID) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrUserNotFound
}

func (f *fakeAuthRepository) GetUserByEmail(_ context.Context, email string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, common.ErrUserNotFound
}

func (f *fakeAuthRepository) GetUserByProvider(_ context.Context, provider, providerUserID string) (*repository.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Provider != nil && *u.Provider == provider && u.ProviderUserID != nil && *u.ProviderUserID == providerUserID {
			return u, nil
		}
	}
	return nil, common.ErrUserNotFound
}

func (f *fakeAuthRepository) LinkProvider(_ context.Context, userID uuid.UUID, provider, providerUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return common.ErrUserNotFound
	}
	u.Provider = &provider
	u.ProviderUserID = &providerUserID
	return nil
}

func (f *fakeAuthRepository) ListUserIDs(context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeAuthRepository) UpdateLastLogin(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		now := time.Now()
		u.LastLoginAt = &now
	}
	return nil
}

func (f *fakeAuthRepository) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return common.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeAuthRepository) MarkEmailVerified(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok && u.EmailVerifiedAt == nil {
		now := time.Now()
		u.EmailVerifiedAt = &now
	}
	return nil
}

func (f *fakeAuthRepository) CreateSession(_ context.Context, userID uuid.UUID, tokenHash, userAgent, clientIP string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = &fakeSession{session: repository.Session{
		ID:        uuid.New(),
		UserID:    userID,
		UserAgent: userAgent,
		ClientIP:  clientIP,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}}
	return nil
}

func (f *fakeAuthRepository) GetActiveSession(_ context.Context, tokenHash string) (*repository.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[tokenHash]
	if !ok || s.revoked || time.Now().After(s.session.ExpiresAt) {
		return nil, common.ErrSessionNotFound
	}
	session := s.session
	return &session, nil
}

func (f *fakeAuthRepository) RevokeSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[tokenHash]
	if !ok || s.revoked {
		return common.ErrSessionNotFound
	}
	s.revoked = true
	return nil
}

func (f *fakeAuthRepository) RevokeAllSessions(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.session.UserID == userID {
			s.revoked = true
		}
	}
	return nil
}

func (f *fakeAuthRepository) DeleteExpiredSessions(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for hash, s := range f.sessions {
		if s.revoked || time.Now().After(s.session.ExpiresAt) {
			delete(f.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (f *fakeAuthRepository) CreateEmailToken(_ context.Context, userID uuid.UUID, tokenHash, purpose string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[tokenHash] = &fakeEmailToken{userID: userID, purpose: purpose, expiresAt: expiresAt}
	return nil
}

func (f *fakeAuthRepository) ConsumeEmailToken(_ context.Context, tokenHash, purpose string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenHash]
	if !ok || t.used || t.purpose != purpose || time.Now().After(t.expiresAt) {
		return uuid.Nil, common.ErrTokenInvalid
	}
	t.used = true
	return t.userID, nil
}

func (f *fakeAuthRepository) activeSessions(userID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.session.UserID == userID && !s.revoked {
			n++
		}
	}
	return n
}

// recordingEmailSender captures tokens instead of sending mail.
type recordingEmailSender struct {
	mu     sync.Mutex
	tokens map[string]string
	sent   chan string
}

func newRecordingEmailSender() *recordingEmailSender {
	return &recordingEmailSender{tokens: make(map[string]string), sent: make(chan string, 16)}
}

func (r *recordingEmailSender) SendVerificationEmail(_ context.Context, email, _, token string) error {
	r.record("verify:"+email, token)
	return nil
}

func (r *recordingEmailSender) SendPasswordResetEmail(_ context.Context, email, _, token string) error {
	r.record("reset:"+email, token)
	return nil
}

func (r *recordingEmailSender) SendWelcomeEmail(_ context.Context, email, _ string) error {
	r.record("welcome:"+email, "")
	return nil
}

func (r *recordingEmailSender) record(key, token string) {
	r.mu.Lock()
	r.tokens[key] = token
	r.mu.Unlock()
	r.sent <- key
}

func (r *recordingEmailSender) waitFor(key string) (string, bool) {
	timeout := time.After(2 * time.Second)
	for {
		select {
		case k := <-r.sent:
			if k == key {
				r.mu.Lock()
				defer r.mu.Unlock()
				return r.tokens[key], true
			}
		case <-timeout:
			return "", false
		}
	}
}

type fakeSeeder struct {
	seeded []uuid.UUID
	err    error
}

func (f *fakeSeeder) SeedDefaults(_ context.Context, userID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.seeded = append(f.seeded, userID)
	return nil
}
