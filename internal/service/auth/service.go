package auth

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/cmlabs-hris/biometric-attendance/internal/config"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/auth"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/jwt"
	"golang.org/x/crypto/bcrypt"
)

// AuthServiceImpl authenticates the single operator account from config.
type AuthServiceImpl struct {
	admin config.AdminConfig
	jwt.Service
}

func NewAuthService(admin config.AdminConfig, jwtService jwt.Service) *AuthServiceImpl {
	return &AuthServiceImpl{
		admin:   admin,
		Service: jwtService,
	}
}

// Login implements auth.AuthService.
func (a *AuthServiceImpl) Login(ctx context.Context, req auth.LoginRequest) (auth.TokenResponse, error) {
	if err := req.Validate(); err != nil {
		return auth.TokenResponse{}, err
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(a.admin.Username)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passwordErr := bcrypt.CompareHashAndPassword([]byte(a.admin.PasswordHash), []byte(req.Password))
	if !usernameOK || passwordErr != nil {
		return auth.TokenResponse{}, auth.ErrInvalidCredentials
	}

	var tokenResponse auth.TokenResponse
	var err error
	tokenResponse.AccessToken, tokenResponse.AccessTokenExpiresAt, err = a.Service.GenerateAccessToken(a.admin.Username)
	if err != nil {
		return auth.TokenResponse{}, fmt.Errorf("failed to create access token: %w", err)
	}
	tokenResponse.StreamToken, tokenResponse.StreamTokenExpiresIn, err = a.Service.GenerateSSEToken(a.admin.Username)
	if err != nil {
		return auth.TokenResponse{}, fmt.Errorf("failed to create stream token: %w", err)
	}

	return tokenResponse, nil
}
