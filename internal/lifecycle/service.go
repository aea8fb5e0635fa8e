// Package lifecycle orchestrates account registration, login and the flows
// that end sessions: suspension, forced logout, password change and rename.
//
// Every flow that ends a session persists the account change first, then
// revokes through the session registry, then pushes a force_logout event.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"accountd.dev/internal/account"
	"accountd.dev/internal/audit"
	"accountd.dev/internal/auth"
	"accountd.dev/internal/blob"
	"accountd.dev/internal/notify"
	"accountd.dev/internal/obs"
	"accountd.dev/internal/session"
)

// ErrAvatarsDisabled is returned when no blob store is configured.
var ErrAvatarsDisabled = errors.New("lifecycle: avatar storage is not configured")

// Notifier pushes events to the live connection of an identity.
type Notifier interface {
	Emit(identity, event string, payload any) bool
	Rename(oldIdentity, newIdentity string)
}

// TokenMinter issues session tokens bound to an account and its identity.
type TokenMinter interface {
	Mint(accountID int64, identity string) (string, time.Time, error)
}

// Upload is an avatar image supplied by a client.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// Session is a freshly minted session token.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Service implements the account lifecycle.
type Service struct {
	store    account.Store
	registry *session.Registry
	notifier Notifier
	tokens   TokenMinter
	blobs    blob.Store
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Option customises a Service.
type Option func(*Service)

// WithBlobStore enables avatar uploads.
func WithBlobStore(b blob.Store) Option {
	return func(s *Service) { s.blobs = b }
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New wires the service. registry must be the same instance the session
// oracle reads.
func New(store account.Store, registry *session.Registry, notifier Notifier, tokens TokenMinter, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		notifier: notifier,
		tokens:   tokens,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account and returns a session bound to it. An avatar
// that cannot be stored is logged and skipped.
func (s *Service) Register(ctx context.Context, username, password string, avatar *Upload) (account.Account, Session, error) {
	if err := account.ValidateUsername(username); err != nil {
		return account.Account{}, Session{}, err
	}
	if err := account.ValidatePassword(password); err != nil {
		return account.Account{}, Session{}, err
	}
	if _, err := s.store.FindByIdentity(ctx, username); err == nil {
		return account.Account{}, Session{}, account.ErrDuplicateIdentity
	} else if !errors.Is(err, account.ErrNotFound) {
		return account.Account{}, Session{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return account.Account{}, Session{}, fmt.Errorf("hash password: %w", err)
	}
	a := account.Account{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().Unix(),
	}
	if avatar != nil {
		key, err := s.storeAvatar(ctx, avatar)
		if err != nil {
			obs.Logger().WarnContext(ctx, "avatar not stored",
				slog.String("username", username), slog.Any("error", err))
		} else {
			a.ProfilePicture = key
		}
	}

	created, err := s.store.Insert(ctx, a)
	if err != nil {
		s.dropAvatar(ctx, a.ProfilePicture)
		return account.Account{}, Session{}, err
	}
	sess, err := s.mint(created)
	if err != nil {
		return account.Account{}, Session{}, err
	}
	_ = audit.LogEvent(ctx, audit.EventRegister, map[string]any{
		"user_id":  created.ID,
		"username": created.Username,
	})
	return created, sess, nil
}

// Authenticate verifies credentials. Unknown usernames and wrong passwords
// fail with the same *account.CredentialError message; a suspended account
// fails with account.ErrSuspended. Success clears any revocation of the
// account.
func (s *Service) Authenticate(ctx context.Context, username, password string) (account.Account, Session, error) {
	a, err := s.store.FindByIdentity(ctx, username)
	if errors.Is(err, account.ErrNotFound) {
		// Match the cost of a real comparison.
		_ = auth.VerifyPassword(s.placeholderHash(), password)
		return account.Account{}, Session{}, s.loginFailed(ctx, username, account.ErrNotFound)
	}
	if err != nil {
		return account.Account{}, Session{}, err
	}
	if a.IsSuspended {
		obs.LoginAttempt("suspended")
		return account.Account{}, Session{}, account.ErrSuspended
	}
	if err := auth.VerifyPassword(a.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			obs.Logger().ErrorContext(ctx, "stored password hash unusable",
				slog.Int64("user_id", a.ID), slog.Any("error", err))
		}
		return account.Account{}, Session{}, s.loginFailed(ctx, username, account.ErrBadCredential)
	}

	s.registry.Clear(a.ID)
	sess, err := s.mint(a)
	if err != nil {
		return account.Account{}, Session{}, err
	}
	obs.LoginAttempt("success")
	_ = audit.LogEvent(ctx, audit.EventLogin, map[string]any{"user_id": a.ID, "username": a.Username})
	return a, sess, nil
}

func (s *Service) loginFailed(ctx context.Context, username string, cause error) error {
	obs.LoginAttempt("failed")
	_ = audit.LogEvent(ctx, audit.EventLoginFailed, map[string]any{
		"username": username,
		"cause":    cause.Error(),
	})
	return account.NewCredentialError(cause)
}

func (s *Service) placeholderHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword("placeholder-password-0")
	})
	return s.dummyHash
}

// SetSuspension flips the suspended flag of accountID. Both directions end
// the account's sessions.
func (s *Service) SetSuspension(ctx context.Context, accountID int64, suspend bool) (account.Account, error) {
	patch := account.Patch{IsSuspended: account.Ptr(suspend)}
	if suspend {
		patch.SuspendedAt = account.Ptr(s.now().Unix())
	}
	a, err := s.store.UpdateFields(ctx, accountID, patch)
	if err != nil {
		return account.Account{}, err
	}

	reason, event := notify.ReasonUnsuspended, audit.EventUnsuspend
	if suspend {
		reason, event = notify.ReasonSuspended, audit.EventSuspend
	}
	s.endSessions(ctx, a, reason)
	_ = audit.LogEvent(ctx, event, map[string]any{"user_id": a.ID, "username": a.Username})
	return a, nil
}

// SetSuspensionByIdentity is SetSuspension addressed by username.
func (s *Service) SetSuspensionByIdentity(ctx context.Context, username string, suspend bool) (account.Account, error) {
	a, err := s.store.FindByIdentity(ctx, username)
	if err != nil {
		return account.Account{}, err
	}
	return s.SetSuspension(ctx, a.ID, suspend)
}

// ForceLogout ends every session of accountID without touching the record.
func (s *Service) ForceLogout(ctx context.Context, accountID int64) (account.Account, error) {
	a, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return account.Account{}, err
	}
	s.endSessions(ctx, a, notify.ReasonForced)
	_ = audit.LogEvent(ctx, audit.EventForceLogout, map[string]any{"user_id": a.ID, "username": a.Username})
	return a, nil
}

// ChangePassword replaces the password after checking the current one and
// ends every session of the account.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error {
	if err := account.ValidatePassword(newPassword); err != nil {
		return err
	}
	a, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := auth.VerifyPassword(a.PasswordHash, oldPassword); err != nil {
		return account.ErrBadCredential
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	a, err = s.store.UpdateFields(ctx, accountID, account.Patch{
		PasswordHash:      account.Ptr(hash),
		PasswordChangedAt: account.Ptr(s.now().UnixMilli()),
	})
	if err != nil {
		return err
	}
	s.endSessions(ctx, a, notify.ReasonPasswordChanged)
	_ = audit.LogEvent(ctx, audit.EventPasswordChange, map[string]any{"user_id": a.ID})
	return nil
}

// Rename changes the username of accountID, moves its live connection
// registration and returns a session bound to the new name.
func (s *Service) Rename(ctx context.Context, accountID int64, newUsername string) (account.Account, Session, error) {
	if err := account.ValidateUsername(newUsername); err != nil {
		return account.Account{}, Session{}, err
	}
	current, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return account.Account{}, Session{}, err
	}
	if current.Username == newUsername {
		return account.Account{}, Session{}, account.ErrSameIdentity
	}
	a, err := s.store.UpdateFields(ctx, accountID, account.Patch{
		Username:          account.Ptr(newUsername),
		UsernameChangedAt: account.Ptr(s.now().Unix()),
	})
	if err != nil {
		return account.Account{}, Session{}, err
	}
	s.notifier.Rename(current.Username, a.Username)

	sess, err := s.mint(a)
	if err != nil {
		return account.Account{}, Session{}, err
	}
	_ = audit.LogEvent(ctx, audit.EventRename, map[string]any{
		"user_id": a.ID,
		"from":    current.Username,
		"to":      a.Username,
	})
	return a, sess, nil
}

// Profile returns the account with accountID.
func (s *Service) Profile(ctx context.Context, accountID int64) (account.Account, error) {
	return s.store.FindByID(ctx, accountID)
}

// UpdateProfilePicture stores upload as the new avatar and removes the old one.
func (s *Service) UpdateProfilePicture(ctx context.Context, accountID int64, upload Upload) (account.Account, error) {
	if s.blobs == nil {
		return account.Account{}, ErrAvatarsDisabled
	}
	current, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return account.Account{}, err
	}
	key, err := s.storeAvatar(ctx, &upload)
	if err != nil {
		return account.Account{}, err
	}
	a, err := s.store.UpdateFields(ctx, accountID, account.Patch{ProfilePicture: account.Ptr(key)})
	if err != nil {
		s.dropAvatar(ctx, key)
		return account.Account{}, err
	}
	s.dropAvatar(ctx, current.ProfilePicture)
	_ = audit.LogEvent(ctx, audit.EventAvatarUpdate, map[string]any{"user_id": a.ID, "key": key})
	return a, nil
}

// Avatar opens a stored avatar by key.
func (s *Service) Avatar(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if s.blobs == nil {
		return nil, "", ErrAvatarsDisabled
	}
	return s.blobs.Get(ctx, key)
}

// EnsureAdmin makes sure username exists with administrator rights,
// creating it with password when missing.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (account.Account, error) {
	a, err := s.store.FindByIdentity(ctx, username)
	switch {
	case err == nil:
		if a.IsAdmin {
			return a, nil
		}
		return s.store.UpdateFields(ctx, a.ID, account.Patch{IsAdmin: account.Ptr(true)})
	case !errors.Is(err, account.ErrNotFound):
		return account.Account{}, err
	}

	if err := account.ValidateUsername(username); err != nil {
		return account.Account{}, err
	}
	if err := account.ValidatePassword(password); err != nil {
		return account.Account{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return account.Account{}, fmt.Errorf("hash password: %w", err)
	}
	return s.store.Insert(ctx, account.Account{
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      true,
		CreatedAt:    s.now().Unix(),
	})
}

func (s *Service) endSessions(ctx context.Context, a account.Account, reason string) {
	s.registry.Revoke(a.ID)
	obs.ForcedLogout(reason)
	delivered := s.notifier.Emit(a.Username, notify.EventForceLogout, notify.NewForceLogout(a.ID, reason, s.now()))
	obs.Logger().InfoContext(ctx, "sessions revoked",
		slog.Int64("user_id", a.ID),
		slog.String("reason", reason),
		slog.Bool("notified", delivered))
}

func (s *Service) mint(a account.Account) (Session, error) {
	token, expires, err := s.tokens.Mint(a.ID, a.Username)
	if err != nil {
		return Session{}, fmt.Errorf("mint token: %w", err)
	}
	return Session{Token: token, ExpiresAt: expires}, nil
}

func (s *Service) storeAvatar(ctx context.Context, up *Upload) (string, error) {
	if s.blobs == nil {
		return "", ErrAvatarsDisabled
	}
	if up.Filename == "" || up.Body == nil {
		return "", &account.FormatError{Reason: "No profile picture selected"}
	}
	key, err := blob.NewKey(up.Filename)
	if errors.Is(err, blob.ErrUnsupportedType) {
		return "", &account.FormatError{Reason: "File type not allowed"}
	}
	if err != nil {
		return "", err
	}
	if err := s.blobs.Put(ctx, key, up.Body, up.Size, blob.ContentType(key)); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) dropAvatar(ctx context.Context, key string) {
	if key == "" || s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		obs.Logger().WarnContext(ctx, "avatar delete failed", slog.String("key", key), slog.Any("error", err))
	}
}
