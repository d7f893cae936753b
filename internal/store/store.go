package store

import (
	"context"
	"errors"

	"github.com/peerpay/peerpay/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrPhoneTaken        = errors.New("phone number already registered")
	ErrEmailTaken        = errors.New("email already registered")
	ErrSelfTransfer      = errors.New("sender and receiver are the same user")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrTokenNotFound     = errors.New("firebase token not found")
)

// Store defines how users, transactions and device tokens are persisted.
//
// Transfer is the engine of the whole service: it must debit the
// sender, credit the receiver and append the transaction record as one
// atomic unit. Concurrent transfers touching the same accounts are
// serialized by the implementation so that no interleaving can
// overdraw an account.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ActivateUser(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	Transfer(ctx context.Context, senderID int64, receiverPhone string, amount int64, reference string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, direction models.Direction) ([]models.TransactionView, error)

	UpsertFirebaseToken(ctx context.Context, userID int64, token string) error
	DeactivateFirebaseToken(ctx context.Context, userID int64, token string) error
	GetFirebaseTokenByPhone(ctx context.Context, phone string) (string, error)
}
