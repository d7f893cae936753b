package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/peerpay/peerpay/internal/mailer"
	"github.com/peerpay/peerpay/internal/models"
	"github.com/peerpay/peerpay/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("the provided credentials are not correct")
	ErrNotActivated       = errors.New("account is not activated")
	ErrUserNotFound       = errors.New("user not found")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidToken       = errors.New("invalid token")
)

const minPasswordLength = 6

// AuthService covers registration, account activation, login and the
// password flows. Activation codes travel over the same Dispatcher as
// transfer codes.
type AuthService struct {
	store     store.Store
	mailer    mailer.Dispatcher
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewAuthService(s store.Store, m mailer.Dispatcher, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{store: s, mailer: m, jwtSecret: []byte(jwtSecret), tokenTTL: tokenTTL}
}

// Register creates an unactivated user and emails the activation code.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, string, error) {
	// Activation and login both key on the email address, so an account
	// without one would be unreachable.
	if req.FirstName == "" || req.LastName == "" || req.Phone == "" || req.Email == "" {
		return nil, "", fmt.Errorf("%w: fname, lname, email and phone are required", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return nil, "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if !strings.Contains(req.Email, "@") {
		return nil, "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("password hashing failed: %w", err)
	}

	code, err := randomCode()
	if err != nil {
		return nil, "", err
	}

	user, err := s.store.CreateUser(ctx, &models.User{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Phone:          req.Phone,
		Email:          req.Email,
		PasswordHash:   string(hash),
		ActivationCode: code,
	})
	if err != nil {
		return nil, "", err
	}

	body := fmt.Sprintf("Welcome! Your account activation code is %s.", code)
	if err := s.mailer.Deliver(ctx, user.Email, "Activate your account", body); err != nil {
		log.Printf("activation mail to %s failed: %v", user.Email, err)
	}

	if req.FirebaseToken != "" {
		if err := s.store.UpsertFirebaseToken(ctx, user.ID, req.FirebaseToken); err != nil {
			log.Printf("firebase token upsert for user %d failed: %v", user.ID, err)
		}
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Activate marks the account verified when the submitted code matches.
func (s *AuthService) Activate(ctx context.Context, email, code string) error {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if code == "" || user.ActivationCode != code {
		return ErrInvalidCode
	}
	return s.store.ActivateUser(ctx, user.ID)
}

// Login checks credentials and activation state and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.User, string, error) {
	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	if !user.Activated() {
		return nil, "", ErrNotActivated
	}

	if req.FirebaseToken != "" {
		if err := s.store.UpsertFirebaseToken(ctx, user.ID, req.FirebaseToken); err != nil {
			log.Printf("firebase token upsert for user %d failed: %v", user.ID, err)
		}
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// ForgetPassword replaces the password with a random one and mails it.
func (s *AuthService) ForgetPassword(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	password, err := randomPassword(10)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("password hashing failed: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	body := fmt.Sprintf("Your new password is %s. Please change it after logging in.", password)
	if err := s.mailer.Deliver(ctx, user.Email, "Your new password", body); err != nil {
		return ErrDispatchFailed
	}
	return nil
}

// ResetPassword changes an authenticated user's password after
// re-checking the current one.
func (s *AuthService) ResetPassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("password hashing failed: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	if user.Email != "" {
		if err := s.mailer.Deliver(ctx, user.Email, "Password changed", "Your password was updated successfully."); err != nil {
			log.Printf("password confirmation mail to %s failed: %v", user.Email, err)
		}
	}
	return nil
}

// GetUser returns the authenticated user's own record.
func (s *AuthService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Logout marks the submitted device token inactive so pushes stop going
// to that device. Bearer tokens are stateless and simply expire.
func (s *AuthService) Logout(ctx context.Context, userID int64, firebaseToken string) error {
	if firebaseToken == "" {
		return nil
	}
	if err := s.store.DeactivateFirebaseToken(ctx, userID, firebaseToken); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *AuthService) issueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", user.ID),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("token signing failed: %w", err)
	}
	return signed, nil
}

// ParseToken validates a bearer token and returns the user id it was
// issued for.
func (s *AuthService) ParseToken(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	var id int64
	if _, err := fmt.Sscanf(claims.Subject, "%d", &id); err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
