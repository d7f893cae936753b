package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peerpay/peerpay/internal/models"
)

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(connString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{db: pool}, nil
}

func (s *Postgres) Close() {
	s.db.Close()
}

func (s *Postgres) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (fname, lname, phone, email, balance, password_hash, activation_code)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		 RETURNING id, created_at`,
		u.FirstName, u.LastName, u.Phone, u.Email, u.Balance, u.PasswordHash, u.ActivationCode,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return nil, ErrEmailTaken
			}
			return nil, ErrPhoneTaken
		}
		return nil, fmt.Errorf("user insert failed: %w", err)
	}
	return u, nil
}

const userColumns = `id, fname, lname, phone, COALESCE(email, ''), balance, password_hash, activation_code, activated_at, created_at`

func (s *Postgres) scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Phone, &u.Email,
		&u.Balance, &u.PasswordHash, &u.ActivationCode, &u.ActivatedAt, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Postgres) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (s *Postgres) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE phone = $1", phone))
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

func (s *Postgres) ActivateUser(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE users SET activated_at = now() WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Postgres) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE users SET password_hash = $1 WHERE id = $2", passwordHash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Transfer moves amount from the sender to the account registered
// under receiverPhone. Both balance rows are locked FOR UPDATE in
// ascending id order before any check, so concurrent transfers over
// the same accounts serialize instead of deadlocking, and two
// concurrent debits can never jointly overdraw the sender.
//
// Under REPEATABLE READ the transaction can still abort with a
// serialization failure (SQLSTATE 40001) when a concurrent commit
// touches the same rows. The caller has already consumed its
// verification code by this point, so one retry happens here rather
// than bouncing the failure back to the client.
func (s *Postgres) Transfer(ctx context.Context, senderID int64, receiverPhone string, amount int64, reference string) (*models.Transaction, error) {
	txn, err := s.transferOnce(ctx, senderID, receiverPhone, amount, reference)
	if err != nil && isSerializationFailure(err) {
		txn, err = s.transferOnce(ctx, senderID, receiverPhone, amount, reference)
	}
	return txn, err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func (s *Postgres) transferOnce(ctx context.Context, senderID int64, receiverPhone string, amount int64, reference string) (*models.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var receiverID int64
	err = tx.QueryRow(ctx, "SELECT id FROM users WHERE phone = $1", receiverPhone).Scan(&receiverID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("receiver lookup failed: %w", err)
	}

	if receiverID == senderID {
		return nil, ErrSelfTransfer
	}

	// Deterministic lock ordering.
	first, second := senderID, receiverID
	if first > second {
		first, second = second, first
	}

	var balance1, balance2 int64
	err = tx.QueryRow(ctx, "SELECT balance FROM users WHERE id = $1 FOR UPDATE", first).Scan(&balance1)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	err = tx.QueryRow(ctx, "SELECT balance FROM users WHERE id = $1 FOR UPDATE", second).Scan(&balance2)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}

	senderBalance := balance1
	if senderID != first {
		senderBalance = balance2
	}
	if senderBalance < amount {
		return nil, ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx, "UPDATE users SET balance = balance - $1 WHERE id = $2", amount, senderID)
	if err != nil {
		return nil, fmt.Errorf("debit failed: %w", err)
	}
	_, err = tx.Exec(ctx, "UPDATE users SET balance = balance + $1 WHERE id = $2", amount, receiverID)
	if err != nil {
		return nil, fmt.Errorf("credit failed: %w", err)
	}

	txn := &models.Transaction{
		Reference:  reference,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (reference, sender_id, receiver_id, amount)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		reference, senderID, receiverID, amount,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return txn, nil
}

func (s *Postgres) ListTransactions(ctx context.Context, userID int64, direction models.Direction) ([]models.TransactionView, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	filter := "(t.sender_id = $1 OR t.receiver_id = $1)"
	switch direction {
	case models.DirectionSent:
		filter = "t.sender_id = $1"
	case models.DirectionReceived:
		filter = "t.receiver_id = $1"
	}

	rows, err := s.db.Query(ctx,
		`SELECT t.id, t.reference, t.amount, t.created_at,
		        CASE WHEN t.sender_id = $1 THEN 'sent' ELSE 'received' END,
		        u.id, u.fname || ' ' || u.lname, u.phone
		 FROM transactions t
		 JOIN users u ON u.id = CASE WHEN t.sender_id = $1 THEN t.receiver_id ELSE t.sender_id END
		 WHERE `+filter+`
		 ORDER BY t.created_at DESC, t.id DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []models.TransactionView
	for rows.Next() {
		var v models.TransactionView
		if err := rows.Scan(&v.ID, &v.Reference, &v.Amount, &v.CreatedAt,
			&v.Direction, &v.Counterparty.ID, &v.Counterparty.Name, &v.Counterparty.Phone); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (s *Postgres) UpsertFirebaseToken(ctx context.Context, userID int64, token string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO firebase_tokens (user_id, token, active)
		 VALUES ($1, $2, TRUE)
		 ON CONFLICT (user_id, token) DO UPDATE SET active = TRUE`,
		userID, token)
	return err
}

// DeactivateFirebaseToken marks one device token inactive, e.g. at
// logout. Unknown tokens are not an error.
func (s *Postgres) DeactivateFirebaseToken(ctx context.Context, userID int64, token string) error {
	_, err := s.db.Exec(ctx,
		"UPDATE firebase_tokens SET active = FALSE WHERE user_id = $1 AND token = $2",
		userID, token)
	return err
}

func (s *Postgres) GetFirebaseTokenByPhone(ctx context.Context, phone string) (string, error) {
	var token string
	err := s.db.QueryRow(ctx,
		`SELECT ft.token
		 FROM firebase_tokens ft
		 JOIN users u ON u.id = ft.user_id
		 WHERE u.phone = $1 AND ft.active
		 ORDER BY ft.created_at DESC
		 LIMIT 1`,
		phone).Scan(&token)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrTokenNotFound
		}
		return "", err
	}
	return token, nil
}
