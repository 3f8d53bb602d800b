package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agentx/liveassist/internal/models"
)

const (
	// AccessTokenTTL is the access token time to live
	AccessTokenTTL = 15 * time.Minute

	tokenTypeAccess = "access"
	tokenTypeRelay  = "relay"

	relayAudience = "relay"
)

var (
	// ErrInvalidToken is returned when a token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token is expired
	ErrExpiredToken = errors.New("token expired")
	// ErrInvalidClaims is returned when token claims are invalid
	ErrInvalidClaims = errors.New("invalid token claims")
	// ErrUnauthenticated is returned when no valid principal is present
	ErrUnauthenticated = errors.New("unauthenticated")
)

// AccessClaims are carried by the main session credential.
type AccessClaims struct {
	UserID    string `json:"user_id"`
	TenantID  string `json:"tenant_id"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// RelayClaims are carried by the short-lived relay session token. The
// conversation binding is optional.
type RelayClaims struct {
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	TokenType      string `json:"token_type"`
	jwt.RegisteredClaims
}

// RelaySession is the verified content of a relay token.
type RelaySession struct {
	SubjectID      string
	TenantID       string
	ConversationID string
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

// JWTService handles JWT operations
type JWTService struct {
	secretKey []byte
	issuer    string
	relayTTL  time.Duration
	now       func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(secretKey, issuer string, relayTTL time.Duration) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		relayTTL:  relayTTL,
		now:       time.Now,
	}
}

// RelayTTL returns the lifetime of relay tokens issued by this service.
func (s *JWTService) RelayTTL() time.Duration {
	return s.relayTTL
}

// GenerateAccessToken generates an access token for a principal
func (s *JWTService) GenerateAccessToken(principal models.Principal) (string, error) {
	now := s.now()
	claims := AccessClaims{
		UserID:    principal.UserID,
		TenantID:  principal.TenantID,
		Role:      principal.Role,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   principal.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateAccessToken validates an access token and returns the principal it asserts
func (s *JWTService) ValidateAccessToken(tokenString string) (*models.Principal, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}

	if claims.TokenType != tokenTypeAccess {
		return nil, ErrInvalidToken
	}

	principal := &models.Principal{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Role:     claims.Role,
	}
	if !principal.Valid() {
		return nil, ErrInvalidClaims
	}
	return principal, nil
}

// IssueRelayToken mints a relay token for the principal. conversationID may be
// empty, in which case the token is valid for any conversation of the tenant.
func (s *JWTService) IssueRelayToken(principal *models.Principal, conversationID string) (string, time.Time, error) {
	if !principal.Valid() {
		return "", time.Time{}, ErrUnauthenticated
	}

	now := s.now()
	expiresAt := now.Add(s.relayTTL)
	claims := RelayClaims{
		TenantID:       principal.TenantID,
		ConversationID: conversationID,
		TokenType:      tokenTypeRelay,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   principal.UserID,
			Audience:  jwt.ClaimStrings{relayAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign relay token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyRelayToken checks signature, expiry and scope of a relay token.
func (s *JWTService) VerifyRelayToken(tokenString string) (*RelaySession, error) {
	claims := &RelayClaims{}
	if err := s.parse(tokenString, claims, jwt.WithAudience(relayAudience)); err != nil {
		return nil, err
	}

	if claims.TokenType != tokenTypeRelay || claims.Subject == "" || claims.TenantID == "" {
		return nil, ErrInvalidClaims
	}

	session := &RelaySession{
		SubjectID:      claims.Subject,
		TenantID:       claims.TenantID,
		ConversationID: claims.ConversationID,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (s *JWTService) parse(tokenString string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	if tokenString == "" {
		return ErrInvalidToken
	}

	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return ErrInvalidClaims
	}
	return nil
}

// ExtractTokenFromBearer extracts token from "Bearer <token>" format
func ExtractTokenFromBearer(authHeader string) string {
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ""
}
