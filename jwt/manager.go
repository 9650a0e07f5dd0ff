package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Attribute keys produced by IDClaims.Attributes.
const (
	AttrEmail    = "email"
	AttrSubject  = "sub"
	AttrUserType = "custom:userType"
	AttrGroups   = "cognito:groups"
	AttrIDToken  = "id_token"
)

const tokenUseID = "id"

var ErrWrongTokenUse = errors.New("jwt: token is not an id token")

// Config configures ID token issuance. HS256 uses PrivateKey as the shared
// secret; Ed25519 accepts raw keys or PEM.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// Manager issues and verifies ID tokens handed out when a sign-in completes.
type Manager struct {
	config Config
}

// IDClaims is the identity carried by an ID token.
type IDClaims struct {
	Email    string   `json:"email"`
	UserType string   `json:"custom:userType,omitempty"`
	Groups   []string `json:"cognito:groups,omitempty"`
	TokenUse string   `json:"token_use"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager validates the TTL, leeway and keys for the chosen method.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 16 {
			return nil, errors.New("hs256 requires a secret of at least 16 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			if len(cfg.PublicKey) == 0 {
				cfg.PublicKey = priv.Public().(ed25519.PublicKey)
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires a public or private key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// IssueID describes the issueid operation and its observable behavior.
//
// IssueID signs an ID token for subject. It fails for a verify-only manager.
func (j *Manager) IssueID(subject, email, userType string, groups []string) (string, error) {
	now := time.Now()
	claims := IDClaims{
		Email:    email,
		UserType: userType,
		Groups:   append([]string(nil), groups...),
		TokenUse: tokenUseID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	key, err := j.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(key)
}

// ParseID verifies signature, expiry, issuer and audience and returns the
// claims.
func (j *Manager) ParseID(tokenStr string) (*IDClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &IDClaims{}, func(t *jwt.Token) (interface{}, error) {
		if j.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != j.config.KeyID {
				return nil, fmt.Errorf("unknown kid %q", kid)
			}
		}
		return j.verifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*IDClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenUse != tokenUseID {
		return nil, ErrWrongTokenUse
	}
	return claims, nil
}

// Attributes flattens the claims into the attribute map a completed sign-in
// carries. Groups are comma separated.
func (c *IDClaims) Attributes() map[string]string {
	attrs := map[string]string{
		AttrEmail:   c.Email,
		AttrSubject: c.Subject,
	}
	if c.UserType != "" {
		attrs[AttrUserType] = c.UserType
	}
	if len(c.Groups) > 0 {
		attrs[AttrGroups] = strings.Join(c.Groups, ",")
	}
	return attrs
}

func (j *Manager) method() jwt.SigningMethod {
	if j.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (j *Manager) signKey() (interface{}, error) {
	if j.config.SigningMethod == MethodHS256 {
		return j.config.PrivateKey, nil
	}
	if len(j.config.PrivateKey) == 0 {
		return nil, errors.New("manager has no signing key")
	}
	return parseEdPrivateKey(j.config.PrivateKey)
}

func (j *Manager) verifyKey() (interface{}, error) {
	if j.config.SigningMethod == MethodHS256 {
		return j.config.PrivateKey, nil
	}
	return parseEdPublicKey(j.config.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
