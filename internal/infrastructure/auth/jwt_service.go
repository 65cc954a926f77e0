package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/you/mimora/domain"
)

const (
	tokenTypeProvider = "provider"
	tokenTypeSession  = "session"
)

// JWTServiceImpl implements domain.TokenService. Provider tokens stand in
// for the identity provider's ID token; session tokens are what the
// Profile Service hands back after authentication.
type JWTServiceImpl struct {
	secretKey   []byte
	issuer      string
	providerTTL time.Duration
	sessionTTL  time.Duration
	now         func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(secretKey string, issuer string, providerTTL, sessionTTL time.Duration) *JWTServiceImpl {
	return &JWTServiceImpl{
		secretKey:   []byte(secretKey),
		issuer:      issuer,
		providerTTL: providerTTL,
		sessionTTL:  sessionTTL,
		now:         time.Now,
	}
}

// generateJTI creates a unique JWT ID
func (j *JWTServiceImpl) generateJTI() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func (j *JWTServiceImpl) sign(claims jwt.MapClaims, ttl time.Duration) (string, time.Time, error) {
	now := j.now()
	exp := now.Add(ttl)
	claims["iss"] = j.issuer
	claims["iat"] = now.Unix()
	claims["exp"] = exp.Unix()
	claims["jti"] = j.generateJTI()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	return signed, exp, err
}

// IssueProviderToken implements domain.TokenService
func (j *JWTServiceImpl) IssueProviderToken(subject string, channel domain.Channel, identifier string) (*domain.ProviderToken, error) {
	raw, exp, err := j.sign(jwt.MapClaims{
		"typ":        tokenTypeProvider,
		"sub":        subject,
		"channel":    string(channel),
		"identifier": identifier,
	}, j.providerTTL)
	if err != nil {
		return nil, err
	}
	return &domain.ProviderToken{
		Raw:        raw,
		Subject:    subject,
		Channel:    string(channel),
		Identifier: identifier,
		ExpiresAt:  time.Unix(exp.Unix(), 0),
	}, nil
}

// ValidateProviderToken implements domain.TokenService
func (j *JWTServiceImpl) ValidateProviderToken(raw string) (*domain.ProviderToken, error) {
	claims, err := j.validateToken(raw, tokenTypeProvider)
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	channel, _ := claims["channel"].(string)
	identifier, ok := claims["identifier"].(string)
	if !ok || sub == "" {
		return nil, domain.ErrTokenMalformed
	}
	exp, _ := claims.GetExpirationTime()

	return &domain.ProviderToken{
		Raw:        raw,
		Subject:    sub,
		Channel:    channel,
		Identifier: identifier,
		ExpiresAt:  exp.Time,
	}, nil
}

// IssueSessionToken implements domain.TokenService
func (j *JWTServiceImpl) IssueSessionToken(accountID string, role domain.Role) (string, error) {
	raw, _, err := j.sign(jwt.MapClaims{
		"typ":        tokenTypeSession,
		"account_id": accountID,
		"role":       string(role),
	}, j.sessionTTL)
	return raw, err
}

// ValidateSessionToken implements domain.TokenService
func (j *JWTServiceImpl) ValidateSessionToken(raw string) (*domain.TokenClaims, error) {
	claims, err := j.validateToken(raw, tokenTypeSession)
	if err != nil {
		return nil, err
	}

	accountID, ok := claims["account_id"].(string)
	if !ok || accountID == "" {
		return nil, domain.ErrTokenMalformed
	}
	role, ok := claims["role"].(string)
	if !ok {
		return nil, domain.ErrTokenMalformed
	}
	iat, ok := claims["iat"].(float64)
	if !ok {
		return nil, domain.ErrTokenMalformed
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, domain.ErrTokenMalformed
	}

	return &domain.TokenClaims{
		AccountID: accountID,
		Role:      domain.Role(role),
		IssuedAt:  int64(iat),
		ExpiresAt: int64(exp),
	}, nil
}

// ExpiryOf implements domain.TokenService. The signature is not checked.
func (j *JWTServiceImpl) ExpiryOf(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, domain.ErrTokenMalformed
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, domain.ErrTokenMalformed
	}
	return exp.Time, nil
}

// validateToken validates a JWT token of the given type and returns claims
func (j *JWTServiceImpl) validateToken(tokenString, typ string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrTokenMalformed
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(j.issuer), jwt.WithTimeFunc(j.now))

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, domain.ErrTokenExpired
	}
	if err != nil || !token.Valid {
		return nil, domain.ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.ErrTokenMalformed
	}
	if t, _ := claims["typ"].(string); t != typ {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}

var _ domain.TokenService = (*JWTServiceImpl)(nil)
