package storefrontapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// GetProfile fetches the live profile of userID. A 401 answer yields AUTH_REJECTED.
func (c *Client) GetProfile(ctx context.Context, credential, userID string) (*Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	raw, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("auth/user/%s", url.PathEscape(userID)),
		bearer: strings.TrimSpace(credential),
	})
	if err != nil {
		return nil, transportError(err, "profile")
	}
	if raw.status != http.StatusOK {
		return nil, statusError(raw, "profile")
	}

	var profile Profile
	if err := decode(raw, "profile", &profile); err != nil {
		return nil, err
	}
	if profile.ID == "" {
		profile.ID = userID
	}
	return &profile, nil
}

// Login exchanges email and password for a bearer credential and the user profile.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	raw, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "auth/login",
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, transportError(err, "login")
	}

	switch {
	case raw.status == http.StatusBadRequest || raw.status == http.StatusUnauthorized || raw.status == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeAuthRejected, "invalid credentials").
			WithDetails(map[string]any{"reason": serverReason(raw.body)})
	case raw.status < 200 || raw.status > 299:
		return nil, statusError(raw, "login")
	}

	var payload struct {
		Success bool    `json:"success"`
		Token   string  `json:"token"`
		Message string  `json:"message"`
		User    Profile `json:"user"`
	}
	if err := decode(raw, "login", &payload); err != nil {
		return nil, err
	}
	if !payload.Success || strings.TrimSpace(payload.Token) == "" {
		reason := payload.Message
		if reason == "" {
			reason = "invalid credentials"
		}
		return nil, pkgerrors.New(pkgerrors.CodeAuthRejected, "invalid credentials").
			WithDetails(map[string]any{"reason": reason})
	}
	if payload.User.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "login response is missing the user id")
	}

	return &LoginResult{Token: strings.TrimSpace(payload.Token), User: payload.User}, nil
}
