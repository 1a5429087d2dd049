package models

import (
	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleStaff  Role = "staff"
	RoleRenter Role = "renter"
)

const (
	LoginPath      = "/login"
	StaffHomePath  = "/admin-dashboard"
	RenterHomePath = "/renter-dashboard"
)

// ParseRole accepts only the roles the accounts service hands out.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

func (r Role) Valid() bool {
	return r == RoleStaff || r == RoleRenter
}

// HomePath is the landing area for the role, or "" when the role is unknown.
func (r Role) HomePath() string {
	switch r {
	case RoleStaff:
		return StaffHomePath
	case RoleRenter:
		return RenterHomePath
	}
	return ""
}

// AccessClaims is the subset of the upstream access token the console reads.
// Tokens are signed by the accounts service and never verified here.
type AccessClaims struct {
	TokenType string `json:"token_type,omitempty"`
	UserID    any    `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Accounts service wire types.

type DetectRoleRequest struct {
	PhoneOrEmail string `json:"phone_or_email"`
}

type DetectRoleResponse struct {
	Role Role `json:"role"`
}

type CodeRequest struct {
	PhoneOrEmail string `json:"phone_or_email"`
}

type VerifyCodeRequest struct {
	PhoneOrEmail string `json:"phone_or_email"`
	OTP          string `json:"otp"`
}

type PasswordLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type RefreshResponse struct {
	Access string `json:"access"`
}

// ErrorResponse covers the error shapes the accounts service produces.
type ErrorResponse struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// Console API request bodies.

type IdentityRequest struct {
	Identity string `json:"identity" validate:"required,max=254"`
}

type ResendRequest struct {
	Identity string `json:"identity" validate:"omitempty,max=254"`
}

type VerifyRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}

type PasswordRequest struct {
	Identity string `json:"identity" validate:"omitempty,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}
