package model

import "time"

// Roles a user may hold. The primary role lives on the user row; secondary
// roles are stored in the user_roles table.
const (
	RoleUser         = "user"
	RoleMaker        = "maker"
	RoleAdmin        = "admin"
	RoleStartupOwner = "startupOwner"
	RoleInvestor     = "investor"
	RoleAgency       = "agency"
	RoleFreelancer   = "freelancer"
	RoleJobseeker    = "jobseeker"
)

// ValidRole reports whether s names a known role.
func ValidRole(s string) bool {
	switch s {
	case RoleUser, RoleMaker, RoleAdmin, RoleStartupOwner, RoleInvestor,
		RoleAgency, RoleFreelancer, RoleJobseeker:
		return true
	}
	return false
}

// User represents an application user record as stored in the `users`
// table. Handlers define separate response types with JSON tags; this
// struct mirrors columns only.
//
// Fields:
//
//	ID                – primary key identifier.
//	Email             – unique email address (nullable).
//	Phone             – unique E.164 phone number (nullable).
//	Username          – unique lowercase handle, at most 30 chars.
//	PasswordHash      – bcrypt hash for email+password logins (nullable).
//	Role              – primary role name.
//	EmailVerified     – whether the email address has been confirmed.
//	PhoneVerified     – whether the phone number has been confirmed.
//	OTPFailedAttempts – consecutive invalid OTP verifications.
//	LastOTPRequest    – when the last OTP send succeeded.
//	LockUntil         – account is locked for OTP verification until this time.
//	LastLogin         – last successful login.
//	DeletionScheduled – when a requested account deletion will fire.
type User struct {
	ID                uint64     // users.id
	Email             *string    // users.email (nullable, unique when present)
	Phone             *string    // users.phone (nullable, unique when present)
	Username          string     // users.username
	PasswordHash      *string    // users.password_hash (nullable)
	Role              string     // users.role
	EmailVerified     bool       // users.is_email_verified
	PhoneVerified     bool       // users.is_phone_verified
	OTPFailedAttempts int        // users.otp_failed_attempts
	LastOTPRequest    *time.Time // users.last_otp_request (nullable)
	LockUntil         *time.Time // users.lock_until (nullable)
	LastLogin         *time.Time // users.last_login (nullable)
	DeletionScheduled *time.Time // users.account_deletion_scheduled (nullable)
	CreatedAt         time.Time  // users.created_at
	UpdatedAt         time.Time  // users.updated_at
}

// IsLocked reports whether the OTP lockout is still in force at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// LockRemaining returns how much lockout time is left, zero when unlocked.
func (u *User) LockRemaining(now time.Time) time.Duration {
	if !u.IsLocked(now) {
		return 0
	}
	return u.LockUntil.Sub(now)
}

// Interest is a declared topic preference with a 1..10 strength, stored in
// the user_interests table and fed into the recommendation profile.
type Interest struct {
	UserID   uint64 // user_interests.user_id
	Name     string // user_interests.name
	Strength int    // user_interests.strength (1..10)
}

// SecondaryRole links a user to an additional role profile. The sparse
// role-specific profile tables reference this row.
type SecondaryRole struct {
	UserID uint64 // user_roles.user_id
	Role   string // user_roles.role
}
