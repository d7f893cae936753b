package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/peerpay/peerpay/internal/models"
	"github.com/peerpay/peerpay/internal/service"
	"github.com/peerpay/peerpay/internal/store"
)

type Handler struct {
	transfers *service.TransferService
	auth      *service.AuthService
}

func NewHandler(transfers *service.TransferService, auth *service.AuthService) *Handler {
	return &Handler{transfers: transfers, auth: auth}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	user, token, err := h.auth.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case isTakenErr(err):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("registration error: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to process the registration. Please try again later.")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"message":        "User registered successfully. Check your email for the verification code.",
		"user":           user,
		"token":          token,
		"firebase_token": req.FirebaseToken,
	})
}

func (h *Handler) ActivateHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.auth.Activate(r.Context(), req.Email, req.Code); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			respondWithError(w, http.StatusNotFound, "User not found.")
		case errors.Is(err, service.ErrInvalidCode):
			respondWithError(w, http.StatusBadRequest, "Invalid verification code.")
		default:
			log.Printf("activation error: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to activate the account.")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Account activated successfully."})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	user, token, err := h.auth.Login(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			respondWithError(w, http.StatusUnauthorized, "The provided credentials are not correct.")
		case errors.Is(err, service.ErrNotActivated):
			respondWithError(w, http.StatusForbidden, "Please verify your email to activate your account.")
		default:
			log.Printf("login error: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to process the login.")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Login successful.",
		"user":    user,
		"token":   token,
	})
}

func (h *Handler) ForgetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ForgetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.auth.ForgetPassword(r.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			respondWithError(w, http.StatusNotFound, "User not found.")
		case errors.Is(err, service.ErrDispatchFailed):
			respondWithError(w, http.StatusInternalServerError, "Failed to send the new password.")
		default:
			log.Printf("forget-password error: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to process request.")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "A new password has been sent to your email."})
}

func (h *Handler) ResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}

	var req models.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.auth.ResetPassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrWrongPassword):
			respondWithError(w, http.StatusBadRequest, "Current password is incorrect.")
		case errors.Is(err, service.ErrInvalidInput):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrUserNotFound):
			respondWithError(w, http.StatusNotFound, "User not found.")
		default:
			log.Printf("reset-password error: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to reset password.")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully."})
}

func (h *Handler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}

	user, err := h.auth.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondWithError(w, http.StatusNotFound, "User not found.")
			return
		}
		log.Printf("user lookup error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load user.")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := authUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}

	// The body is optional; clients without push notifications send none.
	var req models.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	if err := h.auth.Logout(r.Context(), userID, req.FirebaseToken); err != nil {
		log.Printf("logout error for user %d: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to log out.")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully."})
}

func (h *Handler) InitiateTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req models.InitiateTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	err := h.transfers.Initiate(r.Context(), req.SenderID, req.Phone, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReceiverNotFound):
			respondWithError(w, http.StatusNotFound, "Receiver not found.")
		case errors.Is(err, service.ErrSenderNotFound):
			respondWithError(w, http.StatusNotFound, "Sender not found.")
		case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrSelfTransfer):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("transfer initiation error: %v", err)
			respondWithError(w, http.StatusInternalServerError, "An error occurred while processing the transaction. Please try again later.")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Verification code sent. Please confirm the operation.",
	})
}

func (h *Handler) ConfirmTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	txn, firebaseToken, err := h.transfers.Confirm(r.Context(), req.SenderID, req.Phone, req.Amount, req.VerificationCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			respondWithError(w, http.StatusBadRequest, "Invalid verification code.")
		case errors.Is(err, service.ErrInvalidAmount):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrTransferRejected):
			respondWithError(w, http.StatusBadRequest, "Transaction failed. Please check the sender balance or ensure the receiver exists and is not the same as the sender.")
		default:
			log.Printf("transfer confirmation error: %v", err)
			respondWithError(w, http.StatusInternalServerError, "An error occurred while processing the transaction. Please try again later.")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Transaction successful.",
		"transaction":    txn,
		"firebase_token": firebaseToken,
	})
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		respondWithError(w, http.StatusBadRequest, "A valid user_id is required.")
		return
	}
	direction := models.Direction(r.URL.Query().Get("transaction_type"))
	if direction == "" {
		direction = models.DirectionAll
	}

	views, err := h.transfers.History(r.Context(), userID, direction)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBadDirection):
			respondWithError(w, http.StatusBadRequest, "transaction_type must be sent, received or all.")
		case errors.Is(err, service.ErrSenderNotFound):
			respondWithError(w, http.StatusNotFound, "User not found.")
		default:
			log.Printf("transaction history error: %v", err)
			respondWithError(w, http.StatusInternalServerError, "An error occurred while retrieving transactions. Please try again later.")
		}
		return
	}

	if len(views) == 0 {
		respondWithError(w, http.StatusNotFound, "No transactions found for this user.")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Transaction history retrieved successfully.",
		"transactions": views,
	})
}

func isTakenErr(err error) bool {
	return errors.Is(err, store.ErrPhoneTaken) || errors.Is(err, store.ErrEmailTaken)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"message": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
