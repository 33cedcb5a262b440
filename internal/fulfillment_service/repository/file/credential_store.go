package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

// credentialFile is the on-disk token cache. Older caches only carry "token".
type credentialFile struct {
	Token   string `json:"token"`
	Version string `json:"version,omitempty"`
	TS      int64  `json:"ts,omitempty"`
}

// CredentialStore keeps the wallet credential in a JSON file.
type CredentialStore struct {
	path   string
	logger *slog.Logger
}

func NewCredentialStore(path string, logger *slog.Logger) *CredentialStore {
	return &CredentialStore{path: path, logger: logger.With("component", "credential_store_file")}
}

// Load returns nil without error when no cache exists yet.
func (s *CredentialStore) Load() (*domain.Credential, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential file %s: %w", s.path, err)
	}

	var f credentialFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode credential file %s: %w", s.path, err)
	}
	if f.Token == "" {
		return nil, nil
	}

	cred := &domain.Credential{Token: f.Token, Version: f.Version}
	if f.TS > 0 {
		cred.IssuedAt = time.Unix(f.TS, 0).UTC()
	} else if claims, ok := InspectToken(f.Token); ok {
		cred.IssuedAt = claims.IssuedAt
	}
	s.logger.Debug("Loaded cached wallet credential", "path", s.path, "version", cred.Version, "issued_at", cred.IssuedAt)
	return cred, nil
}

// Save writes the credential atomically with owner-only permissions.
func (s *CredentialStore) Save(cred domain.Credential) error {
	f := credentialFile{Token: cred.Token, Version: cred.Version}
	if !cred.IssuedAt.IsZero() {
		f.TS = cred.IssuedAt.Unix()
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credential file %s: %w", s.path, err)
	}
	s.logger.Info("Wallet credential saved", "path", s.path, "version", cred.Version)
	return nil
}

// TokenClaims are the timestamps readable from a JWT credential.
type TokenClaims struct {
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// InspectToken reads iat/exp from a JWT without verifying its signature.
// Opaque tokens report ok=false.
func InspectToken(token string) (TokenClaims, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenClaims{}, false
	}
	var out TokenClaims
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, !out.IssuedAt.IsZero() || !out.ExpiresAt.IsZero()
}

var _ domain.CredentialStore = (*CredentialStore)(nil)
