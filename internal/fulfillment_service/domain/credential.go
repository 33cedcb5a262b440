package domain

import (
	"errors"
	"time"
)

var ErrNoCredential = errors.New("no wallet credential available")

// Credential is a wallet API token and the wallet version it was issued for.
type Credential struct {
	Token    string
	Version  string
	IssuedAt time.Time
}

// MatchesVersion reports whether the credential was issued for version.
// Credentials without a recorded version never match.
func (c Credential) MatchesVersion(version string) bool {
	return c.Version != "" && c.Version == version
}
