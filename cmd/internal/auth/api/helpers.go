package api

import (
	"net/http"

	"authd/cmd/identity"
	"authd/cmd/internal/auth/session"
)

func toUserResponse(a identity.Account) userResponse {
	return userResponse{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Role:        string(a.Role),
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toProfileResponse(p *identity.PhotographerProfile) *photographerProfileResponse {
	if p == nil {
		return nil
	}
	return &photographerProfileResponse{
		Biography:       p.Biography,
		PhoneNumber:     p.PhoneNumber,
		WebsiteURL:      p.WebsiteURL,
		SocialLinks:     p.SocialLinks,
		ProfileImageURL: p.ProfileImageURL,
		CoverImageURL:   p.CoverImageURL,
		CPF:             p.CPF,
		AcceptedTerms:   p.AcceptedTerms,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toSessionResponse(res session.Result) sessionResponse {
	return sessionResponse{
		User:                  toUserResponse(res.Account),
		PhotographerProfile:   toProfileResponse(res.Profile),
		AccessToken:           res.AccessToken,
		AccessTokenExpiresAt:  res.AccessExpiresAt,
		RefreshToken:          res.RefreshToken,
		RefreshTokenExpiresAt: res.RefreshExpiresAt,
		Roles:                 res.Roles,
		DefaultRole:           res.DefaultRole,
	}
}

// extension merges the nested photographerProfile object with the top-level
// fields. Top-level values win; each alias is used only when its primary key is absent.
func (req registerRequest) extension() *session.ExtensionInput {
	var nested profileFields
	if req.PhotographerProfile != nil {
		nested = *req.PhotographerProfile
	}
	top := req.profileFields

	in := &session.ExtensionInput{
		Biography:       firstString(top.Biography, nested.Biography),
		PhoneNumber:     firstString(top.PhoneNumber, top.Phone, nested.PhoneNumber, nested.Phone),
		WebsiteURL:      firstString(top.WebsiteURL, top.Website, nested.WebsiteURL, nested.Website),
		ProfileImageURL: firstString(top.ProfileImageURL, top.ProfilePhotoURL, nested.ProfileImageURL, nested.ProfilePhotoURL),
		CoverImageURL:   firstString(top.CoverImageURL, top.CoverPhotoURL, nested.CoverImageURL, nested.CoverPhotoURL),
		CPF:             firstString(top.CPF, nested.CPF),
	}
	switch {
	case !isNullJSON(top.SocialLinks):
		in.SocialLinks = top.SocialLinks
	case !isNullJSON(nested.SocialLinks):
		in.SocialLinks = nested.SocialLinks
	}
	switch {
	case top.AcceptedTerms != nil:
		v := bool(*top.AcceptedTerms)
		in.AcceptedTerms = &v
	case nested.AcceptedTerms != nil:
		v := bool(*nested.AcceptedTerms)
		in.AcceptedTerms = &v
	}
	return in
}

func firstString(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// statusForKind maps a session error kind onto an HTTP status and error code.
func statusForKind(k session.Kind) (int, string) {
	switch k {
	case session.KindInvalidArgument:
		return http.StatusBadRequest, "invalid_request"
	case session.KindConflict:
		return http.StatusConflict, "conflict"
	case session.KindUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case session.KindForbidden:
		return http.StatusForbidden, "forbidden"
	case session.KindNotFound:
		return http.StatusNotFound, "not_found"
	case session.KindUnavailable:
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
