package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/peerpay/peerpay/internal/cache"
	"github.com/peerpay/peerpay/internal/mailer"
	"github.com/peerpay/peerpay/internal/models"
	"github.com/peerpay/peerpay/internal/store"
)

var (
	ErrSenderNotFound   = errors.New("sender not found")
	ErrReceiverNotFound = errors.New("receiver not found")
	ErrInvalidAmount    = errors.New("amount must be at least 1")
	ErrSelfTransfer     = errors.New("cannot transfer to yourself")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrDispatchFailed   = errors.New("failed to send the verification code")
	ErrTransferRejected = errors.New("transfer not possible")
	ErrBadDirection     = errors.New("unknown transaction type")
)

// TransferService orchestrates the two-step transfer flow: Initiate
// issues a short-lived verification code to the sender, Confirm checks
// it and hands the tuple to the store's atomic transfer.
type TransferService struct {
	store   store.Store
	codes   cache.Codes
	mailer  mailer.Dispatcher
	codeTTL time.Duration
}

func NewTransferService(s store.Store, codes cache.Codes, m mailer.Dispatcher, codeTTL time.Duration) *TransferService {
	return &TransferService{store: s, codes: codes, mailer: m, codeTTL: codeTTL}
}

func codeKey(senderID int64) string {
	return fmt.Sprintf("transfer:%d", senderID)
}

// Initiate validates the transfer parties, stores a fresh verification
// code under the sender's key (overwriting any pending one) and mails
// it to the sender. No balance is touched here.
func (s *TransferService) Initiate(ctx context.Context, senderID int64, receiverPhone string, amount int64) error {
	if amount < 1 {
		return ErrInvalidAmount
	}

	sender, err := s.store.GetUser(ctx, senderID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrSenderNotFound
		}
		return fmt.Errorf("sender lookup failed: %w", err)
	}

	receiver, err := s.store.GetUserByPhone(ctx, receiverPhone)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return ErrReceiverNotFound
		}
		return fmt.Errorf("receiver lookup failed: %w", err)
	}
	if receiver.ID == sender.ID {
		return ErrSelfTransfer
	}

	code, err := randomCode()
	if err != nil {
		return err
	}

	if err := s.codes.Put(ctx, codeKey(sender.ID), code, s.codeTTL); err != nil {
		return fmt.Errorf("storing verification code failed: %w", err)
	}

	body := fmt.Sprintf(
		"Your transfer verification code is %s. It expires in %d minutes.",
		code, int(s.codeTTL.Minutes()))
	if err := s.mailer.Deliver(ctx, sender.Email, "Transfer verification code", body); err != nil {
		log.Printf("verification mail to %s failed: %v", sender.Email, err)
		return ErrDispatchFailed
	}
	return nil
}

// Confirm checks the submitted code against the one issued to the
// sender. A matched code is consumed immediately, before the engine
// runs, so it can never authorize a second transfer. The (phone,
// amount) pair submitted here is what gets executed.
func (s *TransferService) Confirm(ctx context.Context, senderID int64, receiverPhone string, amount int64, submittedCode string) (*models.Transaction, string, error) {
	if amount < 1 {
		return nil, "", ErrInvalidAmount
	}

	stored, err := s.codes.Get(ctx, codeKey(senderID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, "", ErrInvalidCode
		}
		return nil, "", fmt.Errorf("verification code lookup failed: %w", err)
	}
	if stored != submittedCode {
		return nil, "", ErrInvalidCode
	}

	if err := s.codes.Delete(ctx, codeKey(senderID)); err != nil {
		log.Printf("failed to consume verification code for user %d: %v", senderID, err)
	}

	txn, err := s.store.Transfer(ctx, senderID, receiverPhone, amount, uuid.NewString())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUserNotFound),
			errors.Is(err, store.ErrSelfTransfer),
			errors.Is(err, store.ErrInsufficientFunds):
			return nil, "", fmt.Errorf("%w: %w", ErrTransferRejected, err)
		}
		return nil, "", fmt.Errorf("transfer execution failed: %w", err)
	}

	// The receiver's push token is best-effort display data; its
	// absence does not fail a committed transfer.
	token, err := s.store.GetFirebaseTokenByPhone(ctx, receiverPhone)
	if err != nil && !errors.Is(err, store.ErrTokenNotFound) {
		log.Printf("firebase token lookup for %s failed: %v", receiverPhone, err)
	}

	return txn, token, nil
}

// History returns the user's transactions newest-first, filtered by
// direction. An empty slice is a valid result.
func (s *TransferService) History(ctx context.Context, userID int64, direction models.Direction) ([]models.TransactionView, error) {
	if !direction.Valid() {
		return nil, ErrBadDirection
	}
	views, err := s.store.ListTransactions(ctx, userID, direction)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrSenderNotFound
		}
		return nil, fmt.Errorf("history query failed: %w", err)
	}
	return views, nil
}
