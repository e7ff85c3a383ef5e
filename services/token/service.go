package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/oci-onboarding/services"
)

// DefaultTTL is the lifetime of an issued token when none is configured
const DefaultTTL = 30 * time.Minute

// Claim names carried by onboarding tokens
const (
	ClaimSubject     = "sub"
	ClaimCompartment = "compartment"
	ClaimExpiry      = "exp"
)

// signingMethod is the only algorithm issued and accepted
var signingMethod = jwt.SigningMethodHS256

// Claims is the decoded content of a verified token
type Claims struct {
	Subject     string
	Compartment string
	ExpiresAt   time.Time
}

// Config holds configuration for the Service
type Config struct {
	Secret string
	TTL    time.Duration
	// Now overrides the clock used for expiry; defaults to time.Now.
	Now func() time.Time
}

// Service issues and verifies HS256 bearer tokens with a single static secret.
// It keeps no state besides its configuration and is safe for concurrent use.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates a token service
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("token TTL must be positive, got %s", cfg.TTL)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		now:    cfg.Now,
	}, nil
}

// Issue signs a copy of claims with an exp of now+TTL. Any exp in claims is replaced.
func (s *Service) Issue(claims map[string]interface{}) (string, error) {
	toEncode := make(jwt.MapClaims, len(claims)+1)
	for k, v := range claims {
		toEncode[k] = v
	}
	toEncode[ClaimExpiry] = jwt.NewNumericDate(s.now().Add(s.ttl))

	signed, err := jwt.NewWithClaims(signingMethod, toEncode).SignedString(s.secret)
	if err != nil {
		return "", services.NewDomainError(services.ErrorTypeInternal, services.ErrTokenSigning.Message, err)
	}
	return signed, nil
}

// Verify validates the token and returns its subject
func (s *Service) Verify(tokenString string) (string, error) {
	claims, err := s.VerifyClaims(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// VerifyClaims validates signature, algorithm and expiry and decodes the claims.
// Every failure is an unauthorized domain error.
func (s *Service) VerifyClaims(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, services.ErrMissingToken
	}

	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, services.NewAuthError(services.ErrTokenExpired.Message, err)
		}
		return nil, services.NewAuthError(services.ErrInvalidToken.Message, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, services.ErrInvalidToken
	}

	sub, _ := mapClaims[ClaimSubject].(string)
	if sub == "" {
		return nil, services.ErrMissingSubject
	}

	claims := &Claims{Subject: sub}
	claims.Compartment, _ = mapClaims[ClaimCompartment].(string)
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}
