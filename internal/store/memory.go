package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/peerpay/peerpay/internal/models"
)

// Memory is an in-process Store used in development mode and in tests.
// A single mutex serializes every transfer, which trivially satisfies
// the all-or-nothing requirement.
type Memory struct {
	mu           sync.RWMutex
	users        map[int64]*models.User
	transactions []*models.Transaction
	tokens       map[int64][]fbToken
	nextUserID   int64
	nextTxnID    int64
}

type fbToken struct {
	token  string
	active bool
}

func NewMemory() *Memory {
	return &Memory{
		users:  make(map[int64]*models.User),
		tokens: make(map[int64][]fbToken),
	}
}

func (s *Memory) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Phone == u.Phone {
			return nil, ErrPhoneTaken
		}
		if u.Email != "" && existing.Email == u.Email {
			return nil, ErrEmailTaken
		}
	}

	s.nextUserID++
	cp := *u
	cp.ID = s.nextUserID
	cp.CreatedAt = time.Now()
	s.users[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *Memory) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Memory) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(func(u *models.User) bool { return u.Phone == phone })
}

func (s *Memory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if email == "" {
		return nil, ErrUserNotFound
	}
	return s.findLocked(func(u *models.User) bool { return u.Email == email })
}

func (s *Memory) findLocked(match func(*models.User) bool) (*models.User, error) {
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *Memory) ActivateUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	now := time.Now()
	u.ActivatedAt = &now
	return nil
}

func (s *Memory) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

// SetBalance overwrites a user's balance. Dev-mode seeding only; real
// balance movement goes through Transfer.
func (s *Memory) SetBalance(ctx context.Context, id int64, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Balance = balance
	return nil
}

func (s *Memory) Transfer(ctx context.Context, senderID int64, receiverPhone string, amount int64, reference string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.users[senderID]
	if !ok {
		return nil, ErrUserNotFound
	}

	var receiver *models.User
	for _, u := range s.users {
		if u.Phone == receiverPhone {
			receiver = u
			break
		}
	}
	if receiver == nil {
		return nil, ErrUserNotFound
	}
	if receiver.ID == sender.ID {
		return nil, ErrSelfTransfer
	}
	if sender.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	sender.Balance -= amount
	receiver.Balance += amount

	s.nextTxnID++
	txn := &models.Transaction{
		ID:         s.nextTxnID,
		Reference:  reference,
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Amount:     amount,
		CreatedAt:  time.Now(),
	}
	s.transactions = append(s.transactions, txn)

	cp := *txn
	return &cp, nil
}

func (s *Memory) ListTransactions(ctx context.Context, userID int64, direction models.Direction) ([]models.TransactionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, ErrUserNotFound
	}

	var views []models.TransactionView
	for _, t := range s.transactions {
		sent := t.SenderID == userID
		received := t.ReceiverID == userID
		switch direction {
		case models.DirectionSent:
			if !sent {
				continue
			}
		case models.DirectionReceived:
			if !received {
				continue
			}
		default:
			if !sent && !received {
				continue
			}
		}

		counterpartyID := t.SenderID
		dir := models.DirectionReceived
		if sent {
			counterpartyID = t.ReceiverID
			dir = models.DirectionSent
		}
		cp := s.users[counterpartyID]

		views = append(views, models.TransactionView{
			ID:        t.ID,
			Reference: t.Reference,
			Amount:    t.Amount,
			CreatedAt: t.CreatedAt,
			Direction: dir,
			Counterparty: models.Counterparty{
				ID:    cp.ID,
				Name:  cp.Name(),
				Phone: cp.Phone,
			},
		})
	}

	// Newest first.
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID > views[j].ID
		}
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
	return views, nil
}

func (s *Memory) UpsertFirebaseToken(ctx context.Context, userID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	for i, t := range s.tokens[userID] {
		if t.token == token {
			s.tokens[userID][i].active = true
			return nil
		}
	}
	s.tokens[userID] = append(s.tokens[userID], fbToken{token: token, active: true})
	return nil
}

// DeactivateFirebaseToken marks one device token inactive, e.g. at
// logout. Unknown tokens are not an error.
func (s *Memory) DeactivateFirebaseToken(ctx context.Context, userID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	for i, t := range s.tokens[userID] {
		if t.token == token {
			s.tokens[userID][i].active = false
		}
	}
	return nil
}

func (s *Memory) GetFirebaseTokenByPhone(ctx context.Context, phone string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Phone == phone {
			ts := s.tokens[u.ID]
			for i := len(ts) - 1; i >= 0; i-- {
				if ts[i].active {
					return ts[i].token, nil
				}
			}
			return "", ErrTokenNotFound
		}
	}
	return "", ErrUserNotFound
}
