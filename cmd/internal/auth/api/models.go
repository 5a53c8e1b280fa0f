package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// profileFields are the photographer extension keys accepted at registration,
// either at the top level of the body or nested under "photographerProfile".
type profileFields struct {
	Biography       *string         `json:"biography"`
	PhoneNumber     *string         `json:"phoneNumber"`
	Phone           *string         `json:"phone"`
	WebsiteURL      *string         `json:"websiteUrl"`
	Website         *string         `json:"website"`
	SocialLinks     json.RawMessage `json:"socialLinks"`
	ProfileImageURL *string         `json:"profileImageUrl"`
	ProfilePhotoURL *string         `json:"profilePhotoUrl"`
	CoverImageURL   *string         `json:"coverImageUrl"`
	CoverPhotoURL   *string         `json:"coverPhotoUrl"`
	CPF             *string         `json:"cpf"`
	AcceptedTerms   *looseBool      `json:"acceptedTerms"`
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`

	profileFields
	PhotographerProfile *profileFields `json:"photographerProfile"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// looseBool accepts true/false, "true"/"false"/"1"/"0" and 1/0.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return fmt.Errorf("acceptedTerms: %q is not a boolean", raw)
	}
	*b = looseBool(v)
	return nil
}

func isNullJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type photographerProfileResponse struct {
	Biography       *string         `json:"biography"`
	PhoneNumber     *string         `json:"phoneNumber"`
	WebsiteURL      *string         `json:"websiteUrl"`
	SocialLinks     json.RawMessage `json:"socialLinks"`
	ProfileImageURL *string         `json:"profileImageUrl"`
	CoverImageURL   *string         `json:"coverImageUrl"`
	CPF             *string         `json:"cpf"`
	AcceptedTerms   bool            `json:"acceptedTerms"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type sessionResponse struct {
	User                  userResponse                 `json:"user"`
	PhotographerProfile   *photographerProfileResponse `json:"photographerProfile,omitempty"`
	AccessToken           string                       `json:"accessToken"`
	AccessTokenExpiresAt  time.Time                    `json:"accessTokenExpiresAt"`
	RefreshToken          string                       `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time                    `json:"refreshTokenExpiresAt"`
	Roles                 []string                     `json:"roles"`
	DefaultRole           string                       `json:"defaultRole"`
}

type profileResponse struct {
	userResponse
	PhotographerProfile *photographerProfileResponse `json:"photographerProfile,omitempty"`
	Roles               []string                     `json:"roles"`
	DefaultRole         string                       `json:"defaultRole"`
}
