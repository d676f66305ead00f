package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ticketIssuer = "mediarelay"

// TicketClaims bind a stream ticket to exactly one target URL. Headers are
// the request headers the origin expects for that URL.
type TicketClaims struct {
	jwt.RegisteredClaims
	Target    string            `json:"target"`
	TokenType string            `json:"token_type"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// TicketConfig represents stream ticket configuration
type TicketConfig struct {
	SecretKey string
	TTL       time.Duration
}

// TicketService issues and validates stream tickets
type TicketService struct {
	config    TicketConfig
	secretKey []byte
	now       func() time.Time
}

// NewTicketService creates a new ticket service
func NewTicketService(config TicketConfig) *TicketService {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
	}
	return &TicketService{
		config:    config,
		secretKey: []byte(config.SecretKey),
		now:       time.Now,
	}
}

// Issue signs a ticket that authorizes streaming target until the TTL ends.
func (s *TicketService) Issue(target string, headers map[string]string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.config.TTL)

	claims := TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    ticketIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
		Target:    target,
		TokenType: "stream",
		Headers:   headers,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign ticket: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses a ticket and checks that it was issued for target.
func (s *TicketService) Validate(tokenString, target string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	},
		jwt.WithIssuer(ticketIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ticket: %w", err)
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid ticket claims")
	}

	if claims.TokenType != "stream" {
		return nil, fmt.Errorf("invalid token type")
	}

	if claims.Target != target {
		return nil, fmt.Errorf("ticket was issued for a different target")
	}

	return claims, nil
}
