package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"orderdesk/internal/model"
)

var ErrInvalidCredentials = errors.New("invalid login or password")

const (
	DefaultTokenTTL = 12 * time.Hour
	// OperatorClaim names the JWT claim carrying the operator login.
	OperatorClaim = "operator"
)

// AuthService checks the single configured operator account and issues
// bearer tokens.
type AuthService struct {
	operator model.Operator
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthService(login, passwordHash, secret string) (*AuthService, error) {
	if login == "" {
		return nil, errors.New("operator login is empty")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("operator password hash: %w", err)
	}
	return &AuthService{
		operator: model.Operator{Login: login, PasswordHash: []byte(passwordHash)},
		secret:   []byte(secret),
		ttl:      DefaultTokenTTL,
		now:      time.Now,
	}, nil
}

// HashPassword produces a value suitable for OPERATOR_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) Authenticate(login, password string) (*model.Operator, error) {
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(s.operator.Login)) == 1
	// Always run bcrypt so a wrong login costs the same as a wrong password.
	pwErr := bcrypt.CompareHashAndPassword(s.operator.PasswordHash, []byte(password))
	if !loginOK || pwErr != nil {
		return nil, ErrInvalidCredentials
	}
	op := s.operator
	return &op, nil
}

func (s *AuthService) IssueToken(op *model.Operator) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		OperatorClaim: op.Login,
		"iat":         jwt.NewNumericDate(now),
		"exp":         jwt.NewNumericDate(now.Add(s.ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
