package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/huangang/projecthub/internal/config"
	"github.com/huangang/projecthub/internal/models"
	"github.com/huangang/projecthub/internal/utils"
	"github.com/huangang/projecthub/pkg/logger"
	"gorm.io/gorm"
)

const MinPasswordLength = 8

type AuthService struct {
	db        *gorm.DB
	jwtConfig *config.JWTConfig
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{db: db, jwtConfig: jwtCfg}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token    string       `json:"token"`
	User     *models.User `json:"user"`
	ExpireAt time.Time    `json:"expire_at"`
}

func invalidCredentials() *DomainError {
	return &DomainError{Kind: ErrUnauthenticated, Message: "invalid email or password"}
}

// Register creates a local user and signs them in.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := models.NormalizeEmail(req.Email)
	if name == "" {
		return nil, validationError("name", "name can't be blank")
	}
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return nil, validationError("email", "email is invalid")
	}
	if len(req.Password) < MinPasswordLength {
		return nil, validationError("password", "password is too short (minimum is %d characters)", MinPasswordLength)
	}
	if len(req.Password) > utils.MaxPasswordBytes {
		return nil, validationError("password", "password is too long (maximum is %d bytes)", utils.MaxPasswordBytes)
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{Name: name, Email: email, Password: hashed}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &DomainError{Kind: ErrConflict, Field: "email", Message: "email has already been taken"}
		}
		return nil, storeError("user", err)
	}

	logger.Info().Str("user_id", user.ID).Msg("[Auth] user registered")
	return s.issue(&user)
}

// Login checks the credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(req.Email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, storeError("user", err)
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		return nil, invalidCredentials()
	}
	return s.issue(&user)
}

func (s *AuthService) issue(user *models.User) (*LoginResponse, error) {
	hours := s.jwtConfig.ExpireHour
	if hours <= 0 {
		hours = 24
	}
	token, err := utils.GenerateToken(user.ID, user.Email, hours)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		Token:    token,
		User:     user,
		ExpireAt: time.Now().Add(time.Duration(hours) * time.Hour),
	}, nil
}

// GetUserByID retrieves a user by ID
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, storeError("user", err)
	}
	return &user, nil
}
