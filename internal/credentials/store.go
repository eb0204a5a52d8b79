// Package credentials provides secure credential storage, with OS
// keyring as primary and an encrypted database table as fallback, for
// the account passwords and OAuth tokens the transports need (spec §6's
// IMAP/CalDAV/Google transport contracts).
package credentials

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-pim/meridian/internal/crypto"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/rs/zerolog"
	gokeyring "github.com/zalando/go-keyring"
)

const serviceName = "meridian"

// ErrCredentialNotFound is returned when no credential exists for the
// requested account.
var ErrCredentialNotFound = errors.New("credentials: not found")

// OAuthTokens is the persisted state of an OAuth2 grant for an account.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Store provides credential storage with OS keyring and encrypted DB fallback.
type Store struct {
	db             *sql.DB
	encryptor      *crypto.Encryptor
	keyringEnabled bool
	log            zerolog.Logger
}

// NewStore creates a credential store. It tries the OS keyring first,
// falling back to an encrypted database table keyed by dataDir's
// machine-local key.
func NewStore(db *sql.DB, dataDir string) (*Store, error) {
	log := logging.WithComponent("credentials")

	encryptor, err := crypto.NewEncryptor(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	keyringEnabled := testKeyring()
	if keyringEnabled {
		log.Info().Msg("OS keyring available, using as primary credential storage")
	} else {
		log.Warn().Msg("OS keyring not available, using encrypted database storage")
	}

	return &Store{db: db, encryptor: encryptor, keyringEnabled: keyringEnabled, log: log}, nil
}

func testKeyring() bool {
	const testKey = "meridian-test-keyring-check"
	if err := gokeyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	gokeyring.Delete(serviceName, testKey)
	return true
}

// IsKeyringEnabled returns whether the OS keyring is being used.
func (s *Store) IsKeyringEnabled() bool {
	return s.keyringEnabled
}

// SetPassword stores an account password.
func (s *Store) SetPassword(accountID, password string) error {
	if password == "" {
		return nil
	}
	if s.keyringEnabled {
		if err := gokeyring.Set(serviceName, accountID, password); err == nil {
			s.log.Debug().Str("account_id", accountID).Msg("password stored in OS keyring")
			s.clearDBField(accountID, "encrypted_password")
			return nil
		} else {
			s.log.Warn().Err(err).Msg("failed to store in OS keyring, using fallback")
		}
	}

	encrypted, err := s.encryptor.Encrypt(password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}
	if err := s.upsertField(accountID, "encrypted_password", encrypted); err != nil {
		return fmt.Errorf("failed to store encrypted password: %w", err)
	}
	return nil
}

// GetPassword retrieves an account password.
func (s *Store) GetPassword(accountID string) (string, error) {
	if s.keyringEnabled {
		password, err := gokeyring.Get(serviceName, accountID)
		if err == nil {
			return password, nil
		}
		if err != gokeyring.ErrNotFound {
			s.log.Warn().Err(err).Msg("error reading from OS keyring, trying fallback")
		}
	}

	encrypted, err := s.readField(accountID, "encrypted_password")
	if err != nil {
		return "", err
	}
	return s.encryptor.Decrypt(encrypted)
}

// DeletePassword removes an account password from both the keyring and
// the fallback table.
func (s *Store) DeletePassword(accountID string) error {
	if s.keyringEnabled {
		gokeyring.Delete(serviceName, accountID)
	}
	s.clearDBField(accountID, "encrypted_password")
	return nil
}

// SetOAuthTokens stores an OAuth2 access/refresh token pair.
func (s *Store) SetOAuthTokens(accountID string, tokens OAuthTokens) error {
	keyringKey := "oauth:" + accountID
	if s.keyringEnabled {
		packed := tokens.AccessToken + "\x00" + tokens.RefreshToken + "\x00" + tokens.Expiry.Format(time.RFC3339)
		if err := gokeyring.Set(serviceName, keyringKey, packed); err == nil {
			s.log.Debug().Str("account_id", accountID).Msg("OAuth tokens stored in OS keyring")
			s.clearOAuthDBFields(accountID)
			return nil
		} else {
			s.log.Warn().Err(err).Msg("failed to store OAuth tokens in OS keyring, using fallback")
		}
	}

	encAccess, err := s.encryptor.Encrypt(tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := s.encryptor.Encrypt(tokens.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO account_credentials (account_id, encrypted_oauth_access_token, encrypted_oauth_refresh_token, oauth_expiry)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			encrypted_oauth_access_token = excluded.encrypted_oauth_access_token,
			encrypted_oauth_refresh_token = excluded.encrypted_oauth_refresh_token,
			oauth_expiry = excluded.oauth_expiry
	`, accountID, encAccess, encRefresh, tokens.Expiry)
	if err != nil {
		return fmt.Errorf("failed to store encrypted OAuth tokens: %w", err)
	}
	return nil
}

// GetOAuthTokens retrieves an account's OAuth2 tokens.
func (s *Store) GetOAuthTokens(accountID string) (*OAuthTokens, error) {
	if s.keyringEnabled {
		packed, err := gokeyring.Get(serviceName, "oauth:"+accountID)
		if err == nil {
			return unpackOAuthTokens(packed)
		}
		if err != gokeyring.ErrNotFound {
			s.log.Warn().Err(err).Msg("error reading OAuth tokens from OS keyring, trying fallback")
		}
	}

	var encAccess, encRefresh sql.NullString
	var expiry sql.NullTime
	err := s.db.QueryRow(`
		SELECT encrypted_oauth_access_token, encrypted_oauth_refresh_token, oauth_expiry
		FROM account_credentials WHERE account_id = ?
	`, accountID).Scan(&encAccess, &encRefresh, &expiry)
	if err == sql.ErrNoRows || (err == nil && !encAccess.Valid) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query OAuth tokens: %w", err)
	}

	access, err := s.encryptor.Decrypt(encAccess.String)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refresh, err := s.encryptor.Decrypt(encRefresh.String)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return &OAuthTokens{AccessToken: access, RefreshToken: refresh, Expiry: expiry.Time}, nil
}

// DeleteOAuthTokens removes an account's OAuth2 tokens.
func (s *Store) DeleteOAuthTokens(accountID string) error {
	if s.keyringEnabled {
		gokeyring.Delete(serviceName, "oauth:"+accountID)
	}
	s.clearOAuthDBFields(accountID)
	return nil
}

// DeleteAllCredentials removes every stored credential for an account.
func (s *Store) DeleteAllCredentials(accountID string) error {
	s.DeletePassword(accountID)
	s.DeleteOAuthTokens(accountID)
	return nil
}

func unpackOAuthTokens(packed string) (*OAuthTokens, error) {
	parts := splitNul(packed)
	if len(parts) != 3 {
		return nil, fmt.Errorf("credentials: malformed OAuth keyring entry")
	}
	expiry, _ := time.Parse(time.RFC3339, parts[2])
	return &OAuthTokens{AccessToken: parts[0], RefreshToken: parts[1], Expiry: expiry}, nil
}

func splitNul(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func (s *Store) upsertField(accountID, column, value string) error {
	_, err := s.db.Exec(fmt.Sprintf(`
		INSERT INTO account_credentials (account_id, %s) VALUES (?, ?)
		ON CONFLICT(account_id) DO UPDATE SET %s = excluded.%s
	`, column, column, column), accountID, value)
	return err
}

func (s *Store) readField(accountID, column string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM account_credentials WHERE account_id = ?`, column), accountID).Scan(&value)
	if err == sql.ErrNoRows || (err == nil && !value.Valid) {
		return "", ErrCredentialNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query %s: %w", column, err)
	}
	return value.String, nil
}

func (s *Store) clearDBField(accountID, column string) {
	s.db.Exec(fmt.Sprintf(`UPDATE account_credentials SET %s = NULL WHERE account_id = ?`, column), accountID)
}

func (s *Store) clearOAuthDBFields(accountID string) {
	s.db.Exec(`UPDATE account_credentials SET encrypted_oauth_access_token = NULL, encrypted_oauth_refresh_token = NULL, oauth_expiry = NULL WHERE account_id = ?`, accountID)
}
