package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Claims are carried by issued access tokens. Subject holds the user ID.
type Claims struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// RegisterRequest holds the fields of a new account.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// AuthService registers users and issues and verifies access tokens
type AuthService struct {
	store  repository.Store
	secret []byte
	ttl    time.Duration
	log    *logrus.Logger
	now    func() time.Time
}

// NewAuthService initializes a new auth service
func NewAuthService(store repository.Store, secret string, ttl time.Duration, log *logrus.Logger) *AuthService {
	return &AuthService{store: store, secret: []byte(secret), ttl: ttl, log: log, now: time.Now}
}

// Register creates a new user with hashed password
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" || strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return models.User{}, models.ErrInvalidRegistration
	}
	return s.createUser(ctx, req, models.RoleUser)
}

func (s *AuthService) createUser(ctx context.Context, req RegisterRequest, role models.Role) (models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Username:     req.Username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hashedPassword),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
		Enabled:      true,
	}
	err = s.store.InTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return tx.Users().Create(ctx, &user)
	})
	if err != nil {
		return models.User{}, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": role}).Infof("User registered: %s", user.Username)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	var user models.User
	err := s.store.InTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		user, err = tx.Users().FindByUsername(ctx, username)
		return err
	})
	if errors.Is(err, models.ErrUserNotFound) {
		return "", models.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if !user.Enabled {
		return "", models.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.ErrInvalidCredentials
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Username)
	return tokenString, nil
}

// Authenticate verifies a token and returns the caller it was issued to.
func (s *AuthService) Authenticate(tokenString string) (models.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return models.Principal{}, models.ErrInvalidCredentials
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.Principal{}, models.ErrInvalidCredentials
	}
	return models.Principal{UserID: userID, Username: claims.Username, Role: claims.Role}, nil
}

// EnsureAdmin creates the administrator account unless one already exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	var exists bool
	err := s.store.InTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		exists, err = tx.Users().ExistsByRole(ctx, models.RoleAdmin)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to look up administrator: %w", err)
	}
	if exists {
		return nil
	}

	_, err = s.createUser(ctx, RegisterRequest{
		Username:  username,
		Password:  password,
		FirstName: "Admin",
		LastName:  "Admin",
	}, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to create administrator: %w", err)
	}
	return nil
}

// GetUser returns a user profile to that user or to an administrator.
func (s *AuthService) GetUser(ctx context.Context, p models.Principal, id int64) (models.User, error) {
	if p.UserID != id && !p.IsAdmin() {
		return models.User{}, models.ErrForbidden
	}
	var user models.User
	err := s.store.InTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		user, err = tx.Users().FindByID(ctx, id)
		return err
	})
	return user, err
}
