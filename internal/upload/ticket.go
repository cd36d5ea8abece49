package upload

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const ticketKeyInfo = "docchat upload ticket v1"

var (
	ErrTicketMalformed = errors.New("upload ticket malformed")
	ErrTicketSignature = errors.New("upload ticket signature invalid")
	ErrTicketExpired   = errors.New("upload ticket expired")
)

// Ticket is the verified content of an upload token.
type Ticket struct {
	DocumentID uint      `json:"documentId"`
	SessionID  uint      `json:"sessionId"`
	Nonce      string    `json:"nonce"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type ticketClaims struct {
	DocumentID uint   `json:"documentId"`
	SessionID  uint   `json:"sessionId"`
	Nonce      string `json:"nonce"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 upload tokens. No server-side state is kept.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("upload secret is empty")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(ticketKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive ticket key failed: %w", err)
	}
	return &Signer{key: key, ttl: ttl, now: time.Now}, nil
}

func (s *Signer) Issue(documentID, sessionID uint) (string, Ticket, error) {
	now := s.now()
	ticket := Ticket{
		DocumentID: documentID,
		SessionID:  sessionID,
		Nonce:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		ExpiresAt:  now.Add(s.ttl).Truncate(time.Second),
	}
	claims := ticketClaims{
		DocumentID: ticket.DocumentID,
		SessionID:  ticket.SessionID,
		Nonce:      ticket.Nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ticket.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", Ticket{}, fmt.Errorf("sign upload ticket failed: %w", err)
	}
	return token, ticket, nil
}

// Verify returns one of the ErrTicket* values on failure. Callers that face
// clients should collapse them into a single error.
func (s *Signer) Verify(token string) (Ticket, error) {
	if strings.TrimSpace(token) == "" {
		return Ticket{}, ErrTicketMalformed
	}

	var claims ticketClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Ticket{}, ErrTicketExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Ticket{}, ErrTicketSignature
	default:
		return Ticket{}, fmt.Errorf("%w: %v", ErrTicketMalformed, err)
	}

	if claims.DocumentID == 0 || claims.SessionID == 0 || claims.Nonce == "" {
		return Ticket{}, ErrTicketMalformed
	}
	return Ticket{
		DocumentID: claims.DocumentID,
		SessionID:  claims.SessionID,
		Nonce:      claims.Nonce,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
