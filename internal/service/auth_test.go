package service

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/config"
	"github.com/productbazar/api/internal/provider"
	"github.com/productbazar/api/internal/repository"
	"github.com/productbazar/api/internal/utils"
)

// fakeOTP scripts the provider's behavior per test.
type fakeOTP struct {
	sendErr error
	verdict provider.VerifyResult
	sent    []string
}

func (f *fakeOTP) Send(_ context.Context, phone, _ string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, phone)
	return nil
}

func (f *fakeOTP) Verify(context.Context, string, string) (provider.VerifyResult, error) {
	return f.verdict, nil
}

type fakeMailer struct{ sent int }

func (f *fakeMailer) Send(context.Context, string, string, string) error {
	f.sent++
	return nil
}

type authFixture struct {
	svc  *AuthService
	mock sqlmock.Sqlmock
	mr   *miniredis.Miniredis
	otp  *fakeOTP
	mail *fakeMailer
	now  time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		Env:            "dev",
		ClientURL:      "http://localhost:3000",
		JWTSecret:      "test-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     4,
		OTPRequestSec:  60,
		OTPMaxAttempts: 5,
		OTPLockMin:     15,
		DeletionDays:   7,
	}
	otp := &fakeOTP{}
	mail := &fakeMailer{}
	svc := NewAuthService(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db), otp, mail, rdb, zerolog.Nop())

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &authFixture{svc: svc, mock: mock, mr: mr, otp: otp, mail: mail, now: now}
}

const userColumns = "id, email, phone, username, password_hash, role, is_email_verified, is_phone_verified, " +
	"otp_failed_attempts, last_otp_request, lock_until, last_login, account_deletion_scheduled, created_at, updated_at"

func userRow(f *authFixture, id uint64, phone string, attempts int, lockUntil, lastOTP any) *sqlmock.Rows {
	cols := regexp.MustCompile(`,\s*`).Split(userColumns, -1)
	return sqlmock.NewRows(cols).AddRow(
		id, nil, phone, "user543210", nil, "user", false, true,
		attempts, lastOTP, lockUntil, nil, nil, f.now.Add(-24*time.Hour), f.now.Add(-24*time.Hour))
}

func expectGetByPhone(f *authFixture, rows *sqlmock.Rows) {
	f.mock.ExpectQuery("SELECT .+ FROM users WHERE phone=\\?").WillReturnRows(rows)
}

func TestRequestOTPNewPhoneRegister(t *testing.T) {
	f := newAuthFixture(t)

	f.mock.ExpectQuery("SELECT .+ FROM users WHERE phone=\\?").WillReturnError(sql.ErrNoRows)

	masked, err := f.svc.RequestOTP(context.Background(), FlowRegister, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, "*********3210", masked)
	assert.Equal(t, []string{"+919876543210"}, f.otp.sent)

	// The interval guard is armed for the configured window.
	ttl := f.mr.TTL("otp:req:+919876543210")
	assert.Equal(t, 60*time.Second, ttl)
}

func TestRequestOTPUnknownPhoneLogin(t *testing.T) {
	f := newAuthFixture(t)

	f.mock.ExpectQuery("SELECT .+ FROM users WHERE phone=\\?").WillReturnError(sql.ErrNoRows)

	_, err := f.svc.RequestOTP(context.Background(), FlowLogin, "9876543210")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Empty(t, f.otp.sent, "no code goes out for an unknown login phone")
}

func TestRequestOTPIntervalGuard(t *testing.T) {
	f := newAuthFixture(t)

	// A code went out moments ago; the Redis guard is still armed.
	f.mr.Set("otp:req:+919876543210", "1")
	f.mr.SetTTL("otp:req:+919876543210", 45*time.Second)
	f.mock.ExpectQuery("SELECT .+ FROM users WHERE phone=\\?").WillReturnError(sql.ErrNoRows)

	_, err := f.svc.RequestOTP(context.Background(), FlowRegister, "9876543210")
	assert.True(t, apperr.IsKind(err, apperr.KindRateLimited))
	assert.Empty(t, f.otp.sent)
}

func TestRequestOTPRecentRequestOnAccount(t *testing.T) {
	f := newAuthFixture(t)

	recent := f.now.Add(-30 * time.Second)
	expectGetByPhone(f, userRow(f, 7, "+919876543210", 0, nil, recent))

	_, err := f.svc.RequestOTP(context.Background(), FlowLogin, "9876543210")
	require.True(t, apperr.IsKind(err, apperr.KindRateLimited))
	assert.Contains(t, apperr.From(err).Message, "wait")
}

func TestRequestOTPVerifiedPhoneCannotReregister(t *testing.T) {
	f := newAuthFixture(t)

	expectGetByPhone(f, userRow(f, 7, "+919876543210", 0, nil, nil))

	_, err := f.svc.RequestOTP(context.Background(), FlowRegister, "9876543210")
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "PHONE_EXISTS", apperr.From(err).Code)
}

func TestRequestOTPProviderFailureDoesNotArmGuard(t *testing.T) {
	f := newAuthFixture(t)

	f.otp.sendErr = provider.ErrProviderRateLimited
	f.mock.ExpectQuery("SELECT .+ FROM users WHERE phone=\\?").WillReturnError(sql.ErrNoRows)

	_, err := f.svc.RequestOTP(context.Background(), FlowRegister, "9876543210")
	assert.True(t, apperr.IsKind(err, apperr.KindRateLimited))
	assert.False(t, f.mr.Exists("otp:req:+919876543210"), "a failed send must not burn the interval")
}

func TestVerifyOTPCodeFormat(t *testing.T) {
	f := newAuthFixture(t)

	for _, code := range []string{"12345", "1234567", "12ab56", ""} {
		_, err := f.svc.VerifyOTP(context.Background(), FlowLogin, "9876543210", code, "", "1.2.3.4", "ua")
		require.True(t, apperr.IsKind(err, apperr.KindValidation), "code %q", code)
		assert.Equal(t, "INVALID_OTP_FORMAT", apperr.From(err).Code)
	}
}

func TestVerifyOTPInvalidCodeCountsDown(t *testing.T) {
	f := newAuthFixture(t)
	f.otp.verdict = provider.VerifyInvalid

	expectGetByPhone(f, userRow(f, 7, "+919876543210", 1, nil, nil))
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET otp_failed_attempts=otp_failed_attempts+1 WHERE id=?")).
		WithArgs(uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT otp_failed_attempts FROM users WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"otp_failed_attempts"}).AddRow(2))

	_, err := f.svc.VerifyOTP(context.Background(), FlowLogin, "9876543210", "123456", "", "1.2.3.4", "ua")
	require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	assert.Contains(t, apperr.From(err).Message, "3 attempts remaining")
}

func TestVerifyOTPLocksAtMaxAttempts(t *testing.T) {
	f := newAuthFixture(t)
	f.otp.verdict = provider.VerifyInvalid

	expectGetByPhone(f, userRow(f, 7, "+919876543210", 4, nil, nil))
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET otp_failed_attempts=otp_failed_attempts+1 WHERE id=?")).
		WithArgs(uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT otp_failed_attempts FROM users WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"otp_failed_attempts"}).AddRow(5))
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET lock_until=? WHERE id=?")).
		WithArgs(f.now.Add(15*time.Minute), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := f.svc.VerifyOTP(context.Background(), FlowLogin, "9876543210", "123456", "", "1.2.3.4", "ua")
	require.True(t, apperr.IsKind(err, apperr.KindRateLimited))
	assert.Contains(t, apperr.From(err).Message, "ACCOUNT_LOCKED_OTP")
}

func TestVerifyOTPLockedAccountRejected(t *testing.T) {
	f := newAuthFixture(t)
	f.otp.verdict = provider.VerifyValid

	expectGetByPhone(f, userRow(f, 7, "+919876543210", 5, f.now.Add(10*time.Minute), nil))

	// Even a correct code is refused while the lockout runs.
	_, err := f.svc.VerifyOTP(context.Background(), FlowLogin, "9876543210", "123456", "", "1.2.3.4", "ua")
	require.True(t, apperr.IsKind(err, apperr.KindRateLimited))
	assert.Contains(t, apperr.From(err).Message, "ACCOUNT_LOCKED_OTP")
}

func TestVerifyOTPSuccess(t *testing.T) {
	f := newAuthFixture(t)
	f.otp.verdict = provider.VerifyValid

	expectGetByPhone(f, userRow(f, 7, "+919876543210", 2, nil, nil))
	f.mock.ExpectExec("UPDATE users SET otp_failed_attempts=0, lock_until=NULL").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sess, err := f.svc.VerifyOTP(context.Background(), FlowLogin, "9876543210", "123456", "", "1.2.3.4", "ua")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), sess.User.ID)
	assert.NotEmpty(t, sess.Access.Token)
	assert.NotEmpty(t, sess.RefreshRaw)
	assert.NotEmpty(t, sess.RefreshID)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVerifyOTPExpiredCode(t *testing.T) {
	f := newAuthFixture(t)
	f.otp.verdict = provider.VerifyExpired

	expectGetByPhone(f, userRow(f, 7, "+919876543210", 0, nil, nil))
	// Expired codes count toward the lockout like invalid ones.
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET otp_failed_attempts=otp_failed_attempts+1 WHERE id=?")).
		WithArgs(uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT otp_failed_attempts FROM users WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"otp_failed_attempts"}).AddRow(1))

	_, err := f.svc.VerifyOTP(context.Background(), FlowLogin, "9876543210", "123456", "", "1.2.3.4", "ua")
	require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	assert.Equal(t, "OTP_EXPIRED", apperr.From(err).Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVerifyOTPExpiredCodeCanLock(t *testing.T) {
	f := newAuthFixture(t)
	f.otp.verdict = provider.VerifyExpired

	expectGetByPhone(f, userRow(f, 7, "+919876543210", 4, nil, nil))
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET otp_failed_attempts=otp_failed_attempts+1 WHERE id=?")).
		WithArgs(uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT otp_failed_attempts FROM users WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"otp_failed_attempts"}).AddRow(5))
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET lock_until=? WHERE id=?")).
		WithArgs(f.now.Add(15*time.Minute), uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := f.svc.VerifyOTP(context.Background(), FlowLogin, "9876543210", "123456", "", "1.2.3.4", "ua")
	require.True(t, apperr.IsKind(err, apperr.KindRateLimited))
	assert.Contains(t, apperr.From(err).Message, "ACCOUNT_LOCKED_OTP")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVerifyOTPRegisterExistingVerifiedPhone(t *testing.T) {
	f := newAuthFixture(t)
	f.otp.verdict = provider.VerifyValid

	// The fixture row has a verified phone; registering against it must
	// conflict instead of logging the caller in.
	expectGetByPhone(f, userRow(f, 7, "+919876543210", 0, nil, nil))

	_, err := f.svc.VerifyOTP(context.Background(), FlowRegister, "9876543210", "123456", "", "1.2.3.4", "ua")
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, "PHONE_EXISTS", apperr.From(err).Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVerifyOTPRegisterCreatesAccountWithRole(t *testing.T) {
	f := newAuthFixture(t)
	f.otp.verdict = provider.VerifyValid

	f.mock.ExpectQuery("SELECT .+ FROM users WHERE phone=\\?").
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE username=?")).
		WithArgs("user543210").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (phone, username, role, is_phone_verified) VALUES (?,?,?,1)")).
		WithArgs("+919876543210", "user543210", "maker").
		WillReturnResult(sqlmock.NewResult(12, 1))
	f.mock.ExpectQuery("SELECT .+ FROM users WHERE id=\\?").
		WillReturnRows(userRow(f, 12, "+919876543210", 0, nil, nil))
	f.mock.ExpectExec("UPDATE users SET otp_failed_attempts=0, lock_until=NULL").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sess, err := f.svc.VerifyOTP(context.Background(), FlowRegister, "9876543210", "123456", "maker", "1.2.3.4", "ua")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), sess.User.ID)
	assert.NotEmpty(t, sess.RefreshRaw)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestVerifyOTPUnknownRoleRejected(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.VerifyOTP(context.Background(), FlowRegister, "9876543210", "123456", "wizard", "1.2.3.4", "ua")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, "INVALID_ROLE", apperr.From(err).Code)
}

func TestLoginEmailDoesNotMarkPhoneVerified(t *testing.T) {
	f := newAuthFixture(t)
	hash, err := utils.HashPassword("s3cret-pass", 4)
	require.NoError(t, err)

	email := "maker@example.com"
	cols := regexp.MustCompile(`,\s*`).Split(userColumns, -1)
	rows := sqlmock.NewRows(cols).AddRow(
		uint64(7), email, nil, "maker", hash, "maker", true, false,
		0, nil, nil, nil, nil, f.now.Add(-24*time.Hour), f.now.Add(-24*time.Hour))
	f.mock.ExpectQuery("SELECT .+ FROM users WHERE email=\\?").
		WithArgs(email).WillReturnRows(rows)
	// No is_phone_verified in the update: an email login proves nothing
	// about the phone.
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET otp_failed_attempts=0, lock_until=NULL, last_login=? WHERE id=?")).
		WithArgs(f.now, uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sess, err := f.svc.LoginEmail(context.Background(), "Maker@Example.com", "s3cret-pass", "1.2.3.4", "ua")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), sess.User.ID)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func tokenColumnsRows(f *authFixture, id string, userID uint64, hash string, revokedAt any, expiresAt time.Time) *sqlmock.Rows {
	cols := []string{"id", "user_id", "token_hash", "created_by_ip", "user_agent", "provider", "expires_at", "revoked_at", "reason", "created_at"}
	return sqlmock.NewRows(cols).AddRow(id, userID, hash, "1.2.3.4", "ua", "phone", expiresAt, revokedAt, nil, f.now.Add(-time.Hour))
}

func TestRefreshRotates(t *testing.T) {
	f := newAuthFixture(t)

	raw := "raw-refresh-token"
	hash := utils.HashRefreshRaw(raw)
	f.mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash=\\?").
		WillReturnRows(tokenColumnsRows(f, "tok-1", 7, hash, nil, f.now.Add(24*time.Hour)))
	f.mock.ExpectQuery("SELECT .+ FROM users WHERE id=\\?").
		WillReturnRows(userRow(f, 7, "+919876543210", 0, nil, nil))
	f.mock.ExpectExec("UPDATE refresh_tokens SET revoked_at=\\?, reason=\\? WHERE id=\\?").
		WithArgs(f.now, "rotated", "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sess, err := f.svc.Refresh(context.Background(), raw, "1.2.3.4", "ua")
	require.NoError(t, err)
	assert.NotEqual(t, raw, sess.RefreshRaw, "rotation always mints a new token")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRefreshReplayRevokesAllSessions(t *testing.T) {
	f := newAuthFixture(t)

	raw := "stolen-refresh-token"
	revoked := f.now.Add(-time.Hour)
	f.mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash=\\?").
		WillReturnRows(tokenColumnsRows(f, "tok-1", 7, utils.HashRefreshRaw(raw), revoked, f.now.Add(24*time.Hour)))
	f.mock.ExpectExec("UPDATE refresh_tokens SET revoked_at=\\?, reason=\\? WHERE user_id=\\?").
		WithArgs(f.now, "token reuse detected", uint64(7), "").
		WillReturnResult(sqlmock.NewResult(0, 3))

	_, err := f.svc.Refresh(context.Background(), raw, "1.2.3.4", "ua")
	require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	assert.Equal(t, "REFRESH_REUSED", apperr.From(err).Code)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRefreshExpired(t *testing.T) {
	f := newAuthFixture(t)

	raw := "old-refresh-token"
	f.mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash=\\?").
		WillReturnRows(tokenColumnsRows(f, "tok-1", 7, utils.HashRefreshRaw(raw), nil, f.now.Add(-time.Minute)))

	_, err := f.svc.Refresh(context.Background(), raw, "1.2.3.4", "ua")
	require.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	assert.Equal(t, "REFRESH_EXPIRED", apperr.From(err).Code)
}

func TestRefreshMissingToken(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Refresh(context.Background(), "", "1.2.3.4", "ua")
	assert.Equal(t, "MISSING_REFRESH", apperr.From(err).Code)
}

func TestLogoutUnknownTokenIsNoop(t *testing.T) {
	f := newAuthFixture(t)

	f.mock.ExpectExec("UPDATE refresh_tokens SET revoked_at=\\?, reason=\\? WHERE token_hash=\\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, f.svc.Logout(context.Background(), "never-issued"))
	assert.NoError(t, f.svc.Logout(context.Background(), ""))
}

func TestVerifyEmailConsumesToken(t *testing.T) {
	f := newAuthFixture(t)

	f.mr.Set("email:verify:tok123", "7")
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET is_email_verified=1 WHERE id=?")).
		WithArgs(uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, f.svc.VerifyEmail(context.Background(), "tok123"))
	assert.False(t, f.mr.Exists("email:verify:tok123"), "the token is single use")

	// Replaying the same token fails.
	err := f.svc.VerifyEmail(context.Background(), "tok123")
	assert.Equal(t, "TOKEN_EXPIRED", apperr.From(err).Code)
}

func TestValidOTPFormat(t *testing.T) {
	assert.True(t, validOTPFormat("012345"))
	assert.False(t, validOTPFormat("12345"))
	assert.False(t, validOTPFormat("1234567"))
	assert.False(t, validOTPFormat("12a456"))
	assert.False(t, validOTPFormat(""))
}
