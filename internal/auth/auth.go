// Package auth checks bearer tokens on the admin surface.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrMissingToken = errors.New("auth: missing bearer token")
)

type Validator interface {
	Validate(token string) error
}

// TokenSet accepts any of a fixed list of shared tokens. Blank entries are
// ignored; an empty set accepts nothing.
type TokenSet struct {
	tokens [][]byte
}

func NewTokenSet(tokens ...string) TokenSet {
	var s TokenSet
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		s.tokens = append(s.tokens, []byte(t))
	}
	return s
}

func (s TokenSet) Len() int {
	return len(s.tokens)
}

func (s TokenSet) Validate(token string) error {
	in := []byte(token)
	match := 0
	for _, t := range s.tokens {
		match |= subtle.ConstantTimeCompare(t, in)
	}
	if match != 1 {
		return ErrUnauthorized
	}
	return nil
}

// BearerToken extracts the token of an `Authorization: Bearer <token>` value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// CheckHeader validates the bearer token carried by an Authorization header.
func CheckHeader(v Validator, header string) error {
	token, err := BearerToken(header)
	if err != nil {
		return err
	}
	return v.Validate(token)
}
