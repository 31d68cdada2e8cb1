package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"simpletasks/backend/internal/models"
	"simpletasks/backend/internal/utils"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or revoked token")
	ErrUserNotFound       = errors.New("user not found")
)

type AuthService interface {
	LoginUser(db *gorm.DB, email, password string) (*models.User, error)
	GenerateToken(db *gorm.DB, userID uuid.UUID) (string, error)
	ValidateToken(db *gorm.DB, token string) (uuid.UUID, error)
	RevokeToken(db *gorm.DB, token string) error
	GetUser(db *gorm.DB, userID uuid.UUID) (*models.User, error)
}

type AuthServiceImpl struct {
	secret string
	ttl    time.Duration
	issuer string
}

func NewAuthService(secret string, ttl time.Duration, issuer string) *AuthServiceImpl {
	return &AuthServiceImpl{secret: secret, ttl: ttl, issuer: issuer}
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func (s *AuthServiceImpl) LoginUser(db *gorm.DB, email, password string) (*models.User, error) {
	var user models.User
	err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !VerifyPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// GenerateToken issues a signed access token and records its jti so it can
// be revoked later.
func (s *AuthServiceImpl) GenerateToken(db *gorm.DB, userID uuid.UUID) (string, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("failed to generate jti: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := utils.TokenClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Issuer:    s.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := utils.SignJWT(claims, s.secret)
	if err != nil {
		return "", err
	}

	record := models.Token{
		UserID:    userID,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}
	if err := db.Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to create token record: %w", err)
	}

	return signed, nil
}

func (s *AuthServiceImpl) parse(token string) (uuid.UUID, uuid.UUID, error) {
	claims, err := utils.ParseJWT(token, s.secret)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.FromString(claims.UserID)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	jti, err := uuid.FromString(claims.ID)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	return userID, jti, nil
}

// ValidateToken resolves a bearer token to its user. The token must verify
// and its record must still exist.
func (s *AuthServiceImpl) ValidateToken(db *gorm.DB, token string) (uuid.UUID, error) {
	userID, jti, err := s.parse(token)
	if err != nil {
		return uuid.Nil, err
	}

	var count int64
	err = db.Model(&models.Token{}).
		Where("jti = ? AND user_id = ? AND expires_at > ?", jti, userID, time.Now()).
		Count(&count).Error
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if count == 0 {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

func (s *AuthServiceImpl) RevokeToken(db *gorm.DB, token string) error {
	_, jti, err := s.parse(token)
	if err != nil {
		return err
	}
	if err := db.Where("jti = ?", jti).Delete(&models.Token{}).Error; err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *AuthServiceImpl) GetUser(db *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// TokenAuthenticator binds an AuthService to a database handle so request
// middleware can resolve credentials without knowing about gorm.
type TokenAuthenticator struct {
	db   *gorm.DB
	auth AuthService
}

func NewTokenAuthenticator(db *gorm.DB, auth AuthService) *TokenAuthenticator {
	return &TokenAuthenticator{db: db, auth: auth}
}

func (a *TokenAuthenticator) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	return a.auth.ValidateToken(a.db.WithContext(ctx), token)
}
