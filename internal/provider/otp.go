// Package provider holds the external-collaborator boundaries: the OTP
// delivery/verification service and the mailer. Services call these
// through interfaces with per-call timeouts so a slow provider can never
// wedge a request.
package provider

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// VerifyResult is the provider's verdict on a submitted code.
type VerifyResult int

const (
	VerifyValid   VerifyResult = iota // code matches
	VerifyInvalid                     // code does not match
	VerifyExpired                     // code expired or was never issued
)

// Provider error sentinels, mapped to actionable messages by the auth
// service.
var (
	ErrProviderRateLimited = errors.New("provider rate limited")
	ErrInvalidPhoneNumber  = errors.New("provider rejected phone number")
	ErrMaxSendAttempts     = errors.New("provider max send attempts reached")
)

// OTPProvider issues and verifies one-time codes.
type OTPProvider interface {
	// Send delivers a fresh code to the phone. The purpose is one of
	// register, login, verify and may change the message template.
	Send(ctx context.Context, phone, purpose string) error
	// Verify checks a submitted code.
	Verify(ctx context.Context, phone, code string) (VerifyResult, error)
}

// RedisOTP is the built-in provider: codes live in Redis with a short TTL
// and are logged at debug level for development. Swap in an SMS gateway
// implementation behind the same interface for production.
type RedisOTP struct {
	rdb *redis.Client
	log zerolog.Logger
	ttl time.Duration
}

// NewRedisOTP builds the Redis-backed provider with a 5 minute code TTL.
func NewRedisOTP(rdb *redis.Client, log zerolog.Logger) *RedisOTP {
	return &RedisOTP{
		rdb: rdb,
		log: log.With().Str("component", "otp").Logger(),
		ttl: 5 * time.Minute,
	}
}

func otpKey(phone string) string { return "otp:code:" + phone }

// Send generates a 6-digit code and stores it under the phone.
func (p *RedisOTP) Send(ctx context.Context, phone, purpose string) error {
	if p.rdb == nil {
		return errors.New("otp store unavailable")
	}
	code, err := sixDigits()
	if err != nil {
		return err
	}
	if err := p.rdb.SetEx(ctx, otpKey(phone), code, p.ttl).Err(); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	// Development delivery only. A real gateway sends the SMS here.
	p.log.Debug().Str("phone", phone).Str("purpose", purpose).Str("code", code).Msg("otp issued")
	return nil
}

// Verify compares the submitted code with the stored one. A successful
// verification consumes the code.
func (p *RedisOTP) Verify(ctx context.Context, phone, code string) (VerifyResult, error) {
	if p.rdb == nil {
		return VerifyInvalid, errors.New("otp store unavailable")
	}
	stored, err := p.rdb.Get(ctx, otpKey(phone)).Result()
	if err == redis.Nil {
		return VerifyExpired, nil
	}
	if err != nil {
		return VerifyInvalid, fmt.Errorf("load otp: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return VerifyInvalid, nil
	}
	_ = p.rdb.Del(ctx, otpKey(phone)).Err()
	return VerifyValid, nil
}

// sixDigits draws a uniform 6-digit code from crypto/rand.
func sixDigits() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	n := (uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])) % 1000000
	return fmt.Sprintf("%06d", n), nil
}
