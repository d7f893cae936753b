package models

import "time"

// User is an account holder. Balance is kept in integer minor units.
type User struct {
	ID             int64      `json:"id"`
	FirstName      string     `json:"fname"`
	LastName       string     `json:"lname"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email,omitempty"`
	Balance        int64      `json:"balance"`
	PasswordHash   string     `json:"-"`
	ActivationCode string     `json:"-"`
	ActivatedAt    *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Activated reports whether the user has confirmed their email.
func (u *User) Activated() bool {
	return u.ActivatedAt != nil
}

// Name returns the user's display name.
func (u *User) Name() string {
	return u.FirstName + " " + u.LastName
}

// Transaction is the immutable record of one completed transfer.
type Transaction struct {
	ID         int64     `json:"id"`
	Reference  string    `json:"reference"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

// Direction filters a transaction history query.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
	DirectionAll      Direction = "all"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionSent, DirectionReceived, DirectionAll:
		return true
	}
	return false
}

// Counterparty is the public identity of the other party in a transfer.
type Counterparty struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// TransactionView is one history row annotated for a specific user:
// Direction says whether that user sent or received, and Counterparty
// is whoever was on the other side.
type TransactionView struct {
	ID           int64        `json:"id"`
	Reference    string       `json:"reference"`
	Amount       int64        `json:"amount"`
	CreatedAt    time.Time    `json:"created_at"`
	Direction    Direction    `json:"transaction_type"`
	Counterparty Counterparty `json:"user"`
}

// InitiateTransferRequest is the payload starting the two-step transfer flow.
type InitiateTransferRequest struct {
	SenderID int64  `json:"sender_id"`
	Phone    string `json:"phone"`
	Amount   int64  `json:"amount"`
}

// ConfirmTransferRequest resubmits the transfer together with the
// emailed verification code.
type ConfirmTransferRequest struct {
	SenderID         int64  `json:"sender_id"`
	Phone            string `json:"phone"`
	Amount           int64  `json:"amount"`
	VerificationCode string `json:"verification_code"`
}

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	FirstName     string `json:"fname"`
	LastName      string `json:"lname"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	FirebaseToken string `json:"firebase_token,omitempty"`
}

// ActivateRequest confirms the emailed activation code.
type ActivateRequest struct {
	Email string `json:"email"`
	Code  string `json:"verification_code"`
}

// LoginRequest is the credential payload.
type LoginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	FirebaseToken string `json:"firebase_token,omitempty"`
}

// LogoutRequest optionally names the device token to stop notifying.
type LogoutRequest struct {
	FirebaseToken string `json:"firebase_token,omitempty"`
}

// ForgetPasswordRequest asks for a replacement password by email.
type ForgetPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest changes the password of an authenticated user.
type ResetPasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
