package services

import "crypto/subtle"

// Credential -> what a caller presents for a status change
type Credential struct {
	Key     string
	Session bool
}

type Authorizer interface {
	Authorize(cred Credential) bool
}

// KeyAuthorizer accepts an authenticated session or the shared bartender key.
type KeyAuthorizer struct {
	key string
}

func NewKeyAuthorizer(key string) *KeyAuthorizer {
	return &KeyAuthorizer{key: key}
}

func (a *KeyAuthorizer) Authorize(cred Credential) bool {
	if cred.Session {
		return true
	}
	// an unset key must never match an empty credential
	if a.key == "" || cred.Key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.key), []byte(cred.Key)) == 1
}
