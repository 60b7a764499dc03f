package auth

import (
	"context"
	"time"

	"github.com/ardiwinata/qms-compliance/internal/identity"
	"golang.org/x/crypto/bcrypt"
)

// PrincipalStore is the slice of the identity layer the auth flow needs.
type PrincipalStore interface {
	GetByEmail(ctx context.Context, email string) (*identity.Principal, error)
	GetPrincipal(ctx context.Context, id int64) (*identity.Principal, error)
	RecordLogin(ctx context.Context, id int64, at time.Time) error
}

// Service performs authentication-related business logic.
type Service struct {
	principals     PrincipalStore
	tokenGenerator TokenGenerator
	bcryptCost     int
}

func NewService(principals PrincipalStore, tokenGen TokenGenerator) *Service {
	return &Service{
		principals:     principals,
		tokenGenerator: tokenGen,
		bcryptCost:     bcrypt.DefaultCost,
	}
}

// Authenticate validates credentials and returns a token pair. Inactive
// and locked accounts never receive tokens regardless of password.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	principal, err := s.principals.GetByEmail(ctx, dto.Email)
	if err != nil {
		return AuthTokens{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(dto.Password)); err != nil {
		return AuthTokens{}, ErrInvalidCredentials
	}

	if !principal.IsActive {
		return AuthTokens{}, ErrUserInactive
	}
	if principal.IsLocked {
		return AuthTokens{}, ErrUserLocked
	}

	tokens, err := s.issueTokens(principal)
	if err != nil {
		return AuthTokens{}, err
	}

	if err := s.principals.RecordLogin(ctx, principal.ID, time.Now()); err != nil {
		// Login stamp is best effort; the credentials already checked out.
		return tokens, nil
	}
	return tokens, nil
}

// RefreshTokens validates a refresh token and rotates the pair. The
// principal is re-read so a lock applied after issuance takes effect.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	id, err := claims.PrincipalID()
	if err != nil {
		return AuthTokens{}, ErrInvalidToken
	}

	principal, err := s.principals.GetPrincipal(ctx, id)
	if err != nil {
		return AuthTokens{}, ErrInvalidToken
	}
	if !principal.IsActive {
		return AuthTokens{}, ErrUserInactive
	}
	if principal.IsLocked {
		return AuthTokens{}, ErrUserLocked
	}

	return s.issueTokens(principal)
}

// ValidateAccessToken validates an access token and returns its claims.
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateAccessToken(tokenString)
}

// GetPrincipal loads the principal behind validated claims.
func (s *Service) GetPrincipal(ctx context.Context, id int64) (*identity.Principal, error) {
	return s.principals.GetPrincipal(ctx, id)
}

// HashPassword creates a bcrypt hash of the password.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) issueTokens(p *identity.Principal) (AuthTokens, error) {
	accessToken, err := s.tokenGenerator.GenerateAccessToken(p.ID, p.Email, string(p.Role))
	if err != nil {
		return AuthTokens{}, err
	}
	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(p.ID, p.Email, string(p.Role))
	if err != nil {
		return AuthTokens{}, err
	}
	return AuthTokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
