package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/productbazar/api/internal/model"
)

// UserRepo persists users, their interests and role links.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userCols = "id, email, phone, username, password_hash, role, is_email_verified, is_phone_verified, " +
	"otp_failed_attempts, last_otp_request, lock_until, last_login, account_deletion_scheduled, created_at, updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.Username, &u.PasswordHash, &u.Role,
		&u.EmailVerified, &u.PhoneVerified, &u.OTPFailedAttempts, &u.LastOTPRequest,
		&u.LockUntil, &u.LastLogin, &u.DeletionScheduled, &u.CreatedAt, &u.UpdatedAt)
	return u, notFound(err)
}

// CreateFromPhone inserts a phone-registered user. The phone must already
// be normalized. Returns ErrDuplicate when phone or username is taken.
func (r *UserRepo) CreateFromPhone(ctx context.Context, phone, username, role string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (phone, username, role, is_phone_verified) VALUES (?,?,?,1)",
		phone, strings.ToLower(username), role)
	if err != nil {
		if isDup(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateFromEmail inserts an email+password user. Email verification is
// pending until the mailed token is redeemed.
func (r *UserRepo) CreateFromEmail(ctx context.Context, email, username, passwordHash, role string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, username, password_hash, role) VALUES (?,?,?,?)",
		email, strings.ToLower(username), passwordHash, role)
	if err != nil {
		if isDup(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Delete removes a user row. Used to roll back a registration whose role
// profile creation failed, and by the deletion scheduler.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	return err
}

func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id=? LIMIT 1", id))
}

func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE phone=? LIMIT 1", phone))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE email=? LIMIT 1",
		strings.ToLower(strings.TrimSpace(email))))
}

// UsernameExists reports whether a username is taken.
func (r *UserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE username=?", strings.ToLower(username)).Scan(&n)
	return n > 0, err
}

// MarkOTPSent records a successful OTP send: the rate-limit anchor moves
// and the failed-attempt counter resets.
func (r *UserRepo) MarkOTPSent(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET last_otp_request=?, otp_failed_attempts=0 WHERE id=?", at, id)
	return err
}

// IncrementOTPAttempts bumps the failed counter and returns the new value.
func (r *UserRepo) IncrementOTPAttempts(ctx context.Context, id uint64) (int, error) {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE users SET otp_failed_attempts=otp_failed_attempts+1 WHERE id=?", id); err != nil {
		return 0, err
	}
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT otp_failed_attempts FROM users WHERE id=?", id).Scan(&n)
	return n, notFound(err)
}

// Lock sets the OTP lockout deadline.
func (r *UserRepo) Lock(ctx context.Context, id uint64, until time.Time) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET lock_until=? WHERE id=?", until, id)
	return err
}

// TouchLogin records a successful sign-in: counters reset, lock cleared,
// last login stamped. verifyPhone additionally marks the phone verified
// and is set only by the OTP path, since an email login proves nothing
// about the phone.
func (r *UserRepo) TouchLogin(ctx context.Context, id uint64, at time.Time, verifyPhone bool) error {
	set := "otp_failed_attempts=0, lock_until=NULL, last_login=?"
	if verifyPhone {
		set += ", is_phone_verified=1"
	}
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET "+set+" WHERE id=?", at, id)
	return err
}

// MarkEmailVerified flips the email verification flag.
func (r *UserRepo) MarkEmailVerified(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET is_email_verified=1 WHERE id=?", id)
	return err
}

// ScheduleDeletion stamps when the account will be removed.
func (r *UserRepo) ScheduleDeletion(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET account_deletion_scheduled=? WHERE id=?", at, id)
	return err
}

// CancelDeletion clears a pending deletion.
func (r *UserRepo) CancelDeletion(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET account_deletion_scheduled=NULL WHERE id=?", id)
	return err
}

// ListDeletionDue returns users whose scheduled deletion has passed.
func (r *UserRepo) ListDeletionDue(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id FROM users WHERE account_deletion_scheduled IS NOT NULL AND account_deletion_scheduled<=? LIMIT ?",
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Interests loads a user's declared interests for the profile builder.
func (r *UserRepo) Interests(ctx context.Context, userID uint64) ([]model.Interest, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT user_id, name, strength FROM user_interests WHERE user_id=?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Interest
	for rows.Next() {
		var in model.Interest
		if err := rows.Scan(&in.UserID, &in.Name, &in.Strength); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// AddSecondaryRole links an additional role profile to the user.
func (r *UserRepo) AddSecondaryRole(ctx context.Context, userID uint64, role string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO user_roles (user_id, role) VALUES (?,?)", userID, role)
	if isDup(err) {
		return ErrDuplicate
	}
	return err
}
