package authapi

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/authkeeper/authkeeper/internal/models"
)

var validate = validator.New()

func init() {
	// Report on 'TagName' json tag instead of struct name
	// Look at documentation of 'RegisterTagNameFunc' for more details
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		// skip if tag key says it should be ignored
		if name == "-" {
			return ""
		}
		return name
	})
}

// UserPayload is the user profile object as the auth service serializes it
type UserPayload struct {
	ID          int64      `json:"id" validate:"required"`
	Email       string     `json:"email" validate:"required"`
	Username    string     `json:"username" validate:"required"`
	Role        int        `json:"role" validate:"min=0,max=2"`
	RoleName    string     `json:"role_name"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// ToModel converts the wire payload into the domain profile
func (p UserPayload) ToModel() models.User {
	return models.User{
		ID:          p.ID,
		Email:       p.Email,
		Username:    p.Username,
		Role:        models.Role(p.Role),
		RoleName:    p.RoleName,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		LastLoginAt: p.LastLoginAt,
	}
}

// AuthResponse is the body of successful login and register calls
type AuthResponse struct {
	AccessToken  string      `json:"access_token" validate:"required"`
	RefreshToken string      `json:"refresh_token" validate:"required"`
	ExpiresIn    int64       `json:"expires_in" validate:"min=0"`
	User         UserPayload `json:"user" validate:"required"`
}

// AccessTTL returns the server supplied access token lifetime, zero if unknown
func (r AuthResponse) AccessTTL() time.Duration {
	return time.Duration(r.ExpiresIn) * time.Second
}

// TokenResponse is the body of a successful refresh call. The refresh token
// is rotated: the returned one replaces the presented one, which the server
// marks used.
type TokenResponse struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
	ExpiresIn    int64  `json:"expires_in" validate:"min=0"`
}

// AccessTTL returns the server supplied access token lifetime, zero if unknown
func (r TokenResponse) AccessTTL() time.Duration {
	return time.Duration(r.ExpiresIn) * time.Second
}

// errorBody is how the auth service reports failures
type errorBody struct {
	Detail string `json:"detail"`
}
