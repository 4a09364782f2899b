package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/config"
	"github.com/productbazar/api/internal/middleware"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/service"
	"github.com/productbazar/api/internal/utils"
)

const refreshCookie = "refreshToken"

// AuthHandler exposes the OTP and email authentication flows plus
// session and account lifecycle endpoints.
type AuthHandler struct {
	cfg  *config.Config
	auth *service.AuthService
}

func NewAuthHandler(cfg *config.Config, auth *service.AuthService) *AuthHandler {
	return &AuthHandler{cfg: cfg, auth: auth}
}

// userView is the safe subset of the user row returned to clients.
type userView struct {
	ID            uint64  `json:"id"`
	Username      string  `json:"username"`
	Email         *string `json:"email,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	Role          string  `json:"role"`
	EmailVerified bool    `json:"isEmailVerified"`
	PhoneVerified bool    `json:"isPhoneVerified"`
}

func toUserView(u model.User) userView {
	v := userView{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
	}
	if u.Phone != nil {
		v.Phone = utils.MaskPhone(*u.Phone)
	}
	return v
}

type requestOTPBody struct {
	Phone string `json:"phone" validate:"required,min=7,max=20"`
}

// RequestOTP handles POST /auth/:type/request-otp where :type is
// register, login or verify.
func (h *AuthHandler) RequestOTP(c echo.Context) error {
	flow, err := authFlow(c)
	if err != nil {
		return err
	}
	var body requestOTPBody
	if err := bind(c, &body); err != nil {
		return err
	}
	masked, err := h.auth.RequestOTP(c.Request().Context(), flow, body.Phone)
	if err != nil {
		return err
	}
	return OK(c, http.StatusOK, "verification code sent", echo.Map{"phone": masked})
}

type verifyOTPBody struct {
	Phone string `json:"phone" validate:"required,min=7,max=20"`
	Code  string `json:"code" validate:"required,len=6"`
	// Role is honoured on first registration only; existing accounts
	// keep the role they have.
	Role string `json:"role" validate:"omitempty,max=20"`
}

// VerifyOTP handles POST /auth/:type/verify-otp. A valid code ends with
// an issued session; the refresh token travels in an HttpOnly cookie.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	flow, err := authFlow(c)
	if err != nil {
		return err
	}
	var body verifyOTPBody
	if err := bind(c, &body); err != nil {
		return err
	}
	sess, err := h.auth.VerifyOTP(c.Request().Context(), flow, body.Phone, body.Code,
		body.Role, c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return err
	}
	h.setRefreshCookie(c, sess)
	return OK(c, http.StatusOK, "signed in", sessionData(sess))
}

type registerEmailBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Username string `json:"username" validate:"omitempty,min=3,max=30"`
	Role     string `json:"role" validate:"omitempty,max=20"`
}

// RegisterEmail handles POST /auth/register/email.
func (h *AuthHandler) RegisterEmail(c echo.Context) error {
	var body registerEmailBody
	if err := bind(c, &body); err != nil {
		return err
	}
	user, err := h.auth.RegisterEmail(c.Request().Context(), body.Email, body.Password, body.Username, body.Role)
	if err != nil {
		return err
	}
	return OK(c, http.StatusCreated, "account created, check your inbox to verify the address", toUserView(user))
}

type loginEmailBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginEmail handles POST /auth/login/email.
func (h *AuthHandler) LoginEmail(c echo.Context) error {
	var body loginEmailBody
	if err := bind(c, &body); err != nil {
		return err
	}
	sess, err := h.auth.LoginEmail(c.Request().Context(), body.Email, body.Password,
		c.RealIP(), c.Request().UserAgent())
	if err != nil {
		return err
	}
	h.setRefreshCookie(c, sess)
	return OK(c, http.StatusOK, "signed in", sessionData(sess))
}

// VerifyEmail handles GET /auth/verify-email/:token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	if err := h.auth.VerifyEmail(c.Request().Context(), c.Param("token")); err != nil {
		return err
	}
	return OK(c, http.StatusOK, "email verified", nil)
}

// Refresh handles POST /auth/refresh: rotates the refresh cookie and
// returns a fresh access token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	sess, err := h.auth.Refresh(c.Request().Context(), h.refreshFromCookie(c),
		c.RealIP(), c.Request().UserAgent())
	if err != nil {
		h.clearRefreshCookie(c)
		return err
	}
	h.setRefreshCookie(c, sess)
	return OK(c, http.StatusOK, "session refreshed", sessionData(sess))
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.auth.Logout(c.Request().Context(), h.refreshFromCookie(c)); err != nil {
		return err
	}
	h.clearRefreshCookie(c)
	return OK(c, http.StatusOK, "signed out", nil)
}

type revokeBody struct {
	TokenID string `json:"tokenId" validate:"omitempty,uuid4"`
	All     bool   `json:"all"`
}

// RevokeAccess handles POST /auth/revoke-access for the authenticated
// user: one session by ID, or every other session.
func (h *AuthHandler) RevokeAccess(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	var body revokeBody
	if err := bind(c, &body); err != nil {
		return err
	}
	err := h.auth.RevokeAccess(c.Request().Context(), *uid, h.refreshFromCookie(c), body.TokenID, body.All)
	if err != nil {
		return err
	}
	return OK(c, http.StatusOK, "sessions revoked", nil)
}

// RequestDeletion handles POST /auth/request-deletion.
func (h *AuthHandler) RequestDeletion(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	at, err := h.auth.RequestDeletion(c.Request().Context(), *uid)
	if err != nil {
		return err
	}
	return OK(c, http.StatusOK, "account deletion scheduled", echo.Map{"scheduledFor": at})
}

// CancelDeletion handles POST /auth/cancel-deletion.
func (h *AuthHandler) CancelDeletion(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	if err := h.auth.CancelDeletion(c.Request().Context(), *uid); err != nil {
		return err
	}
	return OK(c, http.StatusOK, "account deletion canceled", nil)
}

func sessionData(s *service.Session) echo.Map {
	return echo.Map{
		"user":        toUserView(s.User),
		"accessToken": s.Access.Token,
		"expiresAt":   s.Access.Exp,
		"sessionId":   s.RefreshID,
	}
}

func authFlow(c echo.Context) (string, error) {
	switch t := c.Param("type"); t {
	case service.FlowRegister, service.FlowLogin, service.FlowVerify:
		return t, nil
	default:
		return "", apperr.Validation("INVALID_FLOW", "auth flow must be register, login or verify")
	}
}

// setRefreshCookie installs the rotating refresh token. Cross-site
// clients need SameSite=None which browsers only accept with Secure, so
// production uses that pair and development falls back to Lax.
func (h *AuthHandler) setRefreshCookie(c echo.Context, s *service.Session) {
	cookie := &http.Cookie{
		Name:     refreshCookie,
		Value:    s.RefreshRaw,
		Path:     "/",
		Expires:  s.RefreshExp,
		MaxAge:   int(time.Until(s.RefreshExp).Seconds()),
		HttpOnly: true,
	}
	if h.cfg.IsProduction() {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	} else {
		cookie.SameSite = http.SameSiteLaxMode
	}
	c.SetCookie(cookie)
}

func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	cookie := &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
	if h.cfg.IsProduction() {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	} else {
		cookie.SameSite = http.SameSiteLaxMode
	}
	c.SetCookie(cookie)
}

func (h *AuthHandler) refreshFromCookie(c echo.Context) string {
	if ck, err := c.Cookie(refreshCookie); err == nil {
		return ck.Value
	}
	return ""
}
