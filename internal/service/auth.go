package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/config"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/provider"
	"github.com/productbazar/api/internal/repository"
	"github.com/productbazar/api/internal/utils"
)

// OTP flows. Register creates the account on successful verification;
// login and verify operate on existing accounts.
const (
	FlowRegister = "register"
	FlowLogin    = "login"
	FlowVerify   = "verify"
)

// Session is the product of a successful authentication: a short-lived
// JWT plus a rotating refresh token.
type Session struct {
	User       model.User
	Access     utils.AccessToken
	RefreshRaw string
	RefreshExp time.Time
	RefreshID  string
}

// AuthService owns the OTP state machine, email+password credentials and
// the refresh token lifecycle.
type AuthService struct {
	cfg    *config.Config
	users  *repository.UserRepo
	tokens *repository.TokenRepo
	otp    provider.OTPProvider
	mail   provider.Mailer
	rdb    *redis.Client
	log    zerolog.Logger

	now func() time.Time
}

func NewAuthService(cfg *config.Config, users *repository.UserRepo, tokens *repository.TokenRepo,
	otp provider.OTPProvider, mail provider.Mailer, rdb *redis.Client, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:    cfg,
		users:  users,
		tokens: tokens,
		otp:    otp,
		mail:   mail,
		rdb:    rdb,
		log:    log.With().Str("component", "auth").Logger(),
	}
}

func (s *AuthService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func otpGuardKey(phone string) string { return "otp:req:" + phone }

// RequestOTP validates the phone, enforces the per-phone request
// interval and asks the provider to deliver a code. The interval guard
// is armed only after the provider accepts the send, so a failed
// delivery never burns the user's next attempt.
func (s *AuthService) RequestOTP(ctx context.Context, flow, rawPhone string) (string, error) {
	phone, err := utils.NormalizePhone(rawPhone)
	if err != nil {
		return "", apperr.Validation("INVALID_PHONE", "invalid phone number")
	}

	now := s.clock()
	user, err := s.users.GetByPhone(ctx, phone)
	switch {
	case err == nil:
		if flow == FlowRegister && user.PhoneVerified {
			return "", apperr.Conflict("PHONE_EXISTS", "an account with this phone already exists")
		}
		if user.IsLocked(now) {
			return "", s.lockedErr(&user, now)
		}
		if user.LastOTPRequest != nil {
			wait := time.Duration(s.cfg.OTPRequestSec)*time.Second - now.Sub(*user.LastOTPRequest)
			if wait > 0 {
				return "", apperr.RateLimited(fmt.Sprintf("please wait %d seconds before requesting another code", int(wait.Seconds())+1))
			}
		}
	case errors.Is(err, repository.ErrNotFound):
		if flow == FlowLogin || flow == FlowVerify {
			return "", apperr.NotFound("no account with this phone number")
		}
	default:
		return "", apperr.Internal(err)
	}

	// Redis-side guard catches unregistered phones hammering register.
	if s.rdb != nil {
		if ttl, err := s.rdb.TTL(ctx, otpGuardKey(phone)).Result(); err == nil && ttl > 0 {
			return "", apperr.RateLimited(fmt.Sprintf("please wait %d seconds before requesting another code", int(ttl.Seconds())+1))
		}
	}

	if err := s.otp.Send(ctx, phone, flow); err != nil {
		switch {
		case errors.Is(err, provider.ErrInvalidPhoneNumber):
			return "", apperr.Validation("INVALID_PHONE", "the provider rejected this phone number")
		case errors.Is(err, provider.ErrProviderRateLimited), errors.Is(err, provider.ErrMaxSendAttempts):
			return "", apperr.RateLimited("too many code requests, try again later")
		default:
			return "", apperr.Upstream("could not send verification code", err)
		}
	}

	if s.rdb != nil {
		_ = s.rdb.Set(ctx, otpGuardKey(phone), 1, time.Duration(s.cfg.OTPRequestSec)*time.Second).Err()
	}
	if user.ID != 0 {
		if err := s.users.MarkOTPSent(ctx, user.ID, now); err != nil {
			s.log.Error().Err(err).Uint64("user_id", user.ID).Msg("mark otp sent failed")
		}
	}
	return utils.MaskPhone(phone), nil
}

// VerifyOTP runs the submitted code through the provider and advances
// the account state machine: valid codes log in (or create) the user and
// reset the failure counter; invalid codes count toward the lockout.
func (s *AuthService) VerifyOTP(ctx context.Context, flow, rawPhone, code, role, ip, userAgent string) (*Session, error) {
	phone, err := utils.NormalizePhone(rawPhone)
	if err != nil {
		return nil, apperr.Validation("INVALID_PHONE", "invalid phone number")
	}
	if !validOTPFormat(code) {
		return nil, apperr.Validation("INVALID_OTP_FORMAT", "the code must be 6 digits")
	}
	if role == "" {
		role = model.RoleUser
	} else if !model.ValidRole(role) {
		return nil, apperr.Validation("INVALID_ROLE", "unknown role")
	}

	now := s.clock()
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal(err)
	}
	exists := err == nil
	if !exists && flow != FlowRegister {
		return nil, apperr.NotFound("no account with this phone number")
	}
	// Registration stops at a verified phone; an unverified one means a
	// registration that never completed, and verifying it now finishes
	// that registration instead of leaking a login.
	if exists && flow == FlowRegister && user.PhoneVerified {
		return nil, apperr.Conflict("PHONE_EXISTS", "an account with this phone already exists")
	}
	if exists && user.IsLocked(now) {
		return nil, s.lockedErr(&user, now)
	}

	verdict, err := s.otp.Verify(ctx, phone, code)
	if err != nil {
		return nil, apperr.Upstream("could not verify code", err)
	}
	switch verdict {
	case provider.VerifyExpired:
		// An expired code still counts toward the lockout; the lock
		// takes precedence over the friendlier expiry message.
		failure := s.recordFailedAttempt(ctx, user, exists, now)
		if apperr.IsKind(failure, apperr.KindRateLimited) || apperr.IsKind(failure, apperr.KindInternal) {
			return nil, failure
		}
		return nil, apperr.Unauthorized("OTP_EXPIRED", "the code expired, request a new one")
	case provider.VerifyInvalid:
		return nil, s.recordFailedAttempt(ctx, user, exists, now)
	}

	if !exists {
		user, err = s.registerFromPhone(ctx, phone, role)
		if err != nil {
			return nil, err
		}
	}
	if err := s.users.TouchLogin(ctx, user.ID, now, true); err != nil {
		return nil, apperr.Internal(err)
	}
	return s.issueSession(ctx, user, "phone", ip, userAgent)
}

// recordFailedAttempt bumps the failure counter and locks the account
// when the limit is reached.
func (s *AuthService) recordFailedAttempt(ctx context.Context, user model.User, exists bool, now time.Time) error {
	if !exists {
		return apperr.Unauthorized("INVALID_OTP", "incorrect code")
	}
	attempts, err := s.users.IncrementOTPAttempts(ctx, user.ID)
	if err != nil {
		return apperr.Internal(err)
	}
	if attempts >= s.cfg.OTPMaxAttempts {
		until := now.Add(time.Duration(s.cfg.OTPLockMin) * time.Minute)
		if err := s.users.Lock(ctx, user.ID, until); err != nil {
			return apperr.Internal(err)
		}
		s.log.Warn().Uint64("user_id", user.ID).Time("until", until).Msg("account locked after repeated invalid codes")
		return apperr.RateLimited(fmt.Sprintf("ACCOUNT_LOCKED_OTP: too many invalid codes, try again in %d minutes", s.cfg.OTPLockMin))
	}
	remaining := s.cfg.OTPMaxAttempts - attempts
	return apperr.Unauthorized("INVALID_OTP", fmt.Sprintf("incorrect code, %d attempts remaining", remaining))
}

func (s *AuthService) lockedErr(user *model.User, now time.Time) error {
	mins := int(user.LockRemaining(now).Minutes()) + 1
	return apperr.RateLimited(fmt.Sprintf("ACCOUNT_LOCKED_OTP: try again in %d minutes", mins))
}

// registerFromPhone creates the account row on first successful
// verification. The generated username is user<last6> with a random
// suffix on collision, always within the 30 character limit.
func (s *AuthService) registerFromPhone(ctx context.Context, phone, role string) (model.User, error) {
	username := "user" + utils.PhoneLast6(phone)
	for i := 0; i < 3; i++ {
		taken, err := s.users.UsernameExists(ctx, username)
		if err != nil {
			return model.User{}, apperr.Internal(err)
		}
		if !taken {
			break
		}
		username = "user" + utils.PhoneLast6(phone) + utils.SlugSuffix()
	}
	id, err := s.users.CreateFromPhone(ctx, phone, username, role)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.User{}, apperr.Conflict("PHONE_EXISTS", "an account with this phone already exists")
		}
		return model.User{}, apperr.Internal(err)
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		// The account row exists but cannot be read back; remove it so
		// the user can retry registration cleanly.
		if delErr := s.users.Delete(ctx, id); delErr != nil {
			s.log.Error().Err(delErr).Uint64("user_id", id).Msg("registration rollback failed")
		}
		return model.User{}, apperr.Internal(err)
	}
	return user, nil
}

// RegisterEmail creates an email+password account and sends the
// verification link.
func (s *AuthService) RegisterEmail(ctx context.Context, email, password, username, role string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if role == "" {
		role = model.RoleUser
	}
	if !model.ValidRole(role) || role == model.RoleAdmin {
		return model.User{}, apperr.Validation("INVALID_ROLE", "unknown role")
	}
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	if username == "" {
		username = utils.Slugify(strings.SplitN(email, "@", 2)[0])
	}
	id, err := s.users.CreateFromEmail(ctx, email, username, hash, role)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.User{}, apperr.Conflict("EMAIL_EXISTS", "an account with this email already exists")
		}
		return model.User{}, apperr.Internal(err)
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.User{}, apperr.Internal(err)
	}
	if err := s.sendVerificationEmail(ctx, user); err != nil {
		s.log.Error().Err(err).Uint64("user_id", id).Msg("verification email failed")
	}
	return user, nil
}

func emailVerifyKey(token string) string { return "email:verify:" + token }

func (s *AuthService) sendVerificationEmail(ctx context.Context, user model.User) error {
	if user.Email == nil {
		return nil
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	token := hex.EncodeToString(buf)
	if s.rdb != nil {
		if err := s.rdb.Set(ctx, emailVerifyKey(token), user.ID, 24*time.Hour).Err(); err != nil {
			return err
		}
	}
	link := s.cfg.ClientURL + "/auth/verify-email/" + token
	body := "Welcome to ProductBazar. Confirm your email address:\n\n" + link + "\n\nThe link expires in 24 hours."
	return s.mail.Send(ctx, *user.Email, "Verify your email", body)
}

// VerifyEmail consumes a verification token and marks the address
// confirmed.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	if s.rdb == nil {
		return apperr.Upstream("verification unavailable", errors.New("redis not configured"))
	}
	raw, err := s.rdb.GetDel(ctx, emailVerifyKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return apperr.Unauthorized("TOKEN_EXPIRED", "the verification link expired or was already used")
		}
		return apperr.Internal(err)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.users.MarkEmailVerified(ctx, id); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// LoginEmail authenticates with email+password.
func (s *AuthService) LoginEmail(ctx context.Context, email, password, ip, userAgent string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("INVALID_CREDENTIALS", "incorrect email or password")
		}
		return nil, apperr.Internal(err)
	}
	if user.PasswordHash == nil || !utils.VerifyPassword(*user.PasswordHash, password) {
		return nil, apperr.Unauthorized("INVALID_CREDENTIALS", "incorrect email or password")
	}
	if err := s.users.TouchLogin(ctx, user.ID, s.clock(), false); err != nil {
		return nil, apperr.Internal(err)
	}
	return s.issueSession(ctx, user, "email", ip, userAgent)
}

// issueSession mints the JWT access token and a fresh refresh token; the
// database stores only the refresh token's hash.
func (s *AuthService) issueSession(ctx context.Context, user model.User, prov, ip, userAgent string) (*Session, error) {
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, user.ID, user.Role, s.cfg.AccessTTLMin)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	row := model.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		TokenHash:   utils.HashRefreshRaw(refresh.Raw),
		CreatedByIP: ip,
		UserAgent:   userAgent,
		Provider:    prov,
		ExpiresAt:   refresh.Exp,
	}
	if err := s.tokens.Store(ctx, &row); err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{
		User:       user,
		Access:     access,
		RefreshRaw: refresh.Raw,
		RefreshExp: refresh.Exp,
		RefreshID:  row.ID,
	}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// new pair is issued. Presenting an already-revoked token revokes every
// session of that user, since it means the token leaked.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh, ip, userAgent string) (*Session, error) {
	if rawRefresh == "" {
		return nil, apperr.Unauthorized("MISSING_REFRESH", "refresh token required")
	}
	now := s.clock()
	row, err := s.tokens.GetByHash(ctx, utils.HashRefreshRaw(rawRefresh))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("INVALID_REFRESH", "refresh token not recognized")
		}
		return nil, apperr.Internal(err)
	}
	if row.RevokedAt != nil {
		s.log.Warn().Uint64("user_id", row.UserID).Str("token_id", row.ID).Msg("revoked refresh token replayed, revoking all sessions")
		if err := s.tokens.RevokeAllExcept(ctx, row.UserID, "", "token reuse detected", now); err != nil {
			return nil, apperr.Internal(err)
		}
		return nil, apperr.Unauthorized("REFRESH_REUSED", "session revoked, sign in again")
	}
	if !row.IsActive(now) {
		return nil, apperr.Unauthorized("REFRESH_EXPIRED", "session expired, sign in again")
	}
	user, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.tokens.RevokeByID(ctx, row.ID, "rotated", now); err != nil {
		return nil, apperr.Internal(err)
	}
	return s.issueSession(ctx, user, row.Provider, ip, userAgent)
}

// Logout revokes the presented refresh token. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string) error {
	if rawRefresh == "" {
		return nil
	}
	if err := s.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(rawRefresh), "logout", s.clock()); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal(err)
	}
	return nil
}

// RevokeAccess revokes one named session, or all sessions except the
// current one. The current session cannot be revoked by ID; that is what
// logout is for.
func (s *AuthService) RevokeAccess(ctx context.Context, userID uint64, currentRefreshRaw, targetID string, all bool) error {
	now := s.clock()
	currentID := ""
	if currentRefreshRaw != "" {
		if row, err := s.tokens.GetByHash(ctx, utils.HashRefreshRaw(currentRefreshRaw)); err == nil && row.UserID == userID {
			currentID = row.ID
		}
	}
	if all {
		if err := s.tokens.RevokeAllExcept(ctx, userID, currentID, "user revoked all sessions", now); err != nil {
			return apperr.Internal(err)
		}
		return nil
	}
	if targetID == "" {
		return apperr.Validation("MISSING_TOKEN_ID", "token id required")
	}
	if targetID == currentID {
		return apperr.Validation("CANNOT_REVOKE_CURRENT", "use logout to end the current session")
	}
	row, err := s.tokens.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("session not found")
		}
		return apperr.Internal(err)
	}
	if row.UserID != userID {
		return apperr.Forbidden("session belongs to another account")
	}
	if err := s.tokens.RevokeByID(ctx, targetID, "user revoked", now); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RequestDeletion schedules the account for removal after the grace
// period and notifies the user by email when possible.
func (s *AuthService) RequestDeletion(ctx context.Context, userID uint64) (time.Time, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return time.Time{}, apperr.NotFound("account not found")
		}
		return time.Time{}, apperr.Internal(err)
	}
	if user.DeletionScheduled != nil {
		return *user.DeletionScheduled, nil
	}
	at := s.clock().Add(time.Duration(s.cfg.DeletionDays) * 24 * time.Hour)
	if err := s.users.ScheduleDeletion(ctx, userID, at); err != nil {
		return time.Time{}, apperr.Internal(err)
	}
	if user.Email != nil && user.EmailVerified {
		body := fmt.Sprintf("Your account is scheduled for deletion on %s. Sign in and cancel before then to keep it.", at.Format("January 2, 2006"))
		if err := s.mail.Send(ctx, *user.Email, "Account deletion scheduled", body); err != nil {
			s.log.Error().Err(err).Uint64("user_id", userID).Msg("deletion email failed")
		}
	}
	return at, nil
}

// CancelDeletion clears a pending deletion.
func (s *AuthService) CancelDeletion(ctx context.Context, userID uint64) error {
	if err := s.users.CancelDeletion(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("no deletion is scheduled")
		}
		return apperr.Internal(err)
	}
	return nil
}

// RunDeletionSweeper deletes accounts whose grace period elapsed. Runs
// until the context is canceled; meant to be started from main.
func (s *AuthService) RunDeletionSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ids, err := s.users.ListDeletionDue(ctx, s.clock(), 100)
			if err != nil {
				s.log.Error().Err(err).Msg("deletion sweep query failed")
				continue
			}
			for _, id := range ids {
				if err := s.users.Delete(ctx, id); err != nil {
					s.log.Error().Err(err).Uint64("user_id", id).Msg("scheduled deletion failed")
					continue
				}
				if err := s.tokens.RevokeAllExcept(ctx, id, "", "account deleted", s.clock()); err != nil {
					s.log.Error().Err(err).Uint64("user_id", id).Msg("session revoke after deletion failed")
				}
				s.log.Info().Uint64("user_id", id).Msg("account deleted after grace period")
			}
		}
	}
}

func validOTPFormat(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
