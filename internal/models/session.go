package models

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Session is the per-browser OAuth state: the pending CSRF state and any Spotify tokens.
//
// A Session is owned by one request at a time; handlers load it, mutate it and save it back.
type Session struct {
	id           string
	State        string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	createdAt    time.Time
	updatedAt    time.Time
}

// NewSession creates an empty session. The ID is assigned on persistence.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{createdAt: now, updatedAt: now}
}

func (s *Session) ID() string               { return s.id }
func (s *Session) SetID(id string)          { s.id = id }
func (s *Session) CreatedAt() time.Time     { return s.createdAt }
func (s *Session) SetCreatedAt(t time.Time) { s.createdAt = t }
func (s *Session) UpdatedAt() time.Time     { return s.updatedAt }
func (s *Session) SetUpdatedAt(t time.Time) { s.updatedAt = t }

// Validate requires an access token to be accompanied by a token type.
func (s *Session) Validate() error {
	if s.AccessToken != "" && s.TokenType == "" {
		return fmt.Errorf("token type is required with an access token")
	}
	return nil
}

// LoggedIn reports whether both tokens are present.
func (s *Session) LoggedIn() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// Expired reports whether the access token is past its expiry at now.
// A zero expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && now.After(s.Expiry)
}

// Token returns the session's tokens as an [oauth2.Token].
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.Expiry,
	}
}

// SetToken stores tok on the session. An empty refresh token keeps the existing one.
func (s *Session) SetToken(tok *oauth2.Token) {
	s.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.RefreshToken = tok.RefreshToken
	}
	s.TokenType = tok.TokenType
	if s.TokenType == "" {
		s.TokenType = "Bearer"
	}
	s.Expiry = tok.Expiry.UTC()
}
