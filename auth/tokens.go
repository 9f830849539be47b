package auth

import (
	"errors"
	"time"

	"github.com/apex/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/vulcanapp/vulcan/common"
)

// Token decode failure classes.
//
// Expiry is deliberately NOT among them: an expired-but-authentic credential
// is surfaced as data so refresh flows can tell a stale credential apart
// from a forged one.
var (
	// ErrMalformedToken the credential encoding is structurally invalid
	ErrMalformedToken = errors.New("malformed session credential")
	// ErrBadSignature the credential signature does not verify
	ErrBadSignature = errors.New("session credential signature mismatch")
)

// Identity the subject payload carried inside a session credential
type Identity struct {
	// ID the user ID
	ID string `json:"id" validate:"required"`
	// Username the login name
	Username string `json:"username" validate:"required"`
	// Email the account email
	Email string `json:"email"`
	// UserType either "client" or "admin"
	UserType string `json:"user_type" validate:"required,oneof=client admin"`
	// MemberSince account creation timestamp
	MemberSince time.Time `json:"member_since"`
	// Activated whether the account is activated
	Activated bool `json:"activated"`
}

// sessionClaims the on-wire claim set of a session credential
type sessionClaims struct {
	Identity
	jwt.RegisteredClaims
}

// TokenIssuer issues and validates signed, time-bound session credentials.
//
// Pure function of the process-wide secret and its inputs; the signing
// algorithm and secret are fixed for the process lifetime.
type TokenIssuer interface {
	// Issue produce a signed credential carrying the identity, expiring at now + ttl
	Issue(identity Identity, ttl time.Duration) (string, error)
	// IssuePair produce the (access, refresh) credential pair for an identity
	IssuePair(identity Identity) (access string, refresh string, err error)
	// Verify validate a credential.
	//
	// Returns expired=true with the decoded identity when the credential is
	// authentic but past its expiry. Structural and signature failures come
	// back as ErrMalformedToken / ErrBadSignature respectively.
	Verify(credential string) (expired bool, identity Identity, err error)
	// AccessTTL the configured access credential lifespan
	AccessTTL() time.Duration
	// RefreshTTL the configured refresh credential lifespan
	RefreshTTL() time.Duration
}

// tokenIssuerImpl implements TokenIssuer
type tokenIssuerImpl struct {
	common.Component
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
}

// GetTokenIssuer define a new TokenIssuer around a signing secret
func GetTokenIssuer(
	secret string, accessTTL, refreshTTL time.Duration, instance string,
) (TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token issuer needs a signing secret")
	}
	logTags := log.Fields{
		"module":    "auth",
		"component": "token-issuer",
		"instance":  instance,
	}
	return &tokenIssuerImpl{
		Component:  common.Component{LogTags: logTags},
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		// Expiry is checked manually after signature verification
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Issue produce a signed credential carrying the identity
func (t *tokenIssuerImpl) Issue(identity Identity, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			// Absolute UTC expiry to avoid clock-skew classes of bugs
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		log.WithError(err).WithFields(t.LogTags).Errorf(
			"Unable to issue credential for %s", identity.Username,
		)
		return "", err
	}
	return signed, nil
}

// IssuePair produce the (access, refresh) credential pair for an identity
func (t *tokenIssuerImpl) IssuePair(identity Identity) (string, string, error) {
	access, err := t.Issue(identity, t.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err := t.Issue(identity, t.refreshTTL)
	if err != nil {
		return "", "", err
	}
	log.WithFields(t.LogTags).Debugf("Issued credential pair for %s", identity.Username)
	return access, refresh, nil
}

// Verify validate a credential
func (t *tokenIssuerImpl) Verify(credential string) (bool, Identity, error) {
	var claims sessionClaims
	_, err := t.parser.ParseWithClaims(
		credential, &claims, func(token *jwt.Token) (interface{}, error) {
			return t.secret, nil
		},
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			log.WithFields(t.LogTags).Debug("Credential signature mismatch")
			return false, Identity{}, ErrBadSignature
		}
		log.WithError(err).WithFields(t.LogTags).Debug("Credential decode failed")
		return false, Identity{}, ErrMalformedToken
	}
	if claims.ExpiresAt == nil {
		return false, Identity{}, ErrMalformedToken
	}
	expired := time.Now().UTC().After(claims.ExpiresAt.Time)
	return expired, claims.Identity, nil
}

// AccessTTL the configured access credential lifespan
func (t *tokenIssuerImpl) AccessTTL() time.Duration {
	return t.accessTTL
}

// RefreshTTL the configured refresh credential lifespan
func (t *tokenIssuerImpl) RefreshTTL() time.Duration {
	return t.refreshTTL
}
