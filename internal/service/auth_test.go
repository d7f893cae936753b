package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerpay/peerpay/internal/models"
	"github.com/peerpay/peerpay/internal/store"
)

func newAuthFixture(t *testing.T) (*AuthService, *store.Memory, *fakeDispatcher) {
	t.Helper()
	st := store.NewMemory()
	disp := &fakeDispatcher{}
	return NewAuthService(st, disp, "test-secret", time.Hour), st, disp
}

func register(t *testing.T, svc *AuthService) (*models.User, string) {
	t.Helper()
	user, token, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Amina",
		LastName:  "K",
		Phone:     "+212600000001",
		Email:     "amina@example.com",
		Password:  "s3cretpw",
	})
	require.NoError(t, err)
	return user, token
}

func TestRegisterAndActivate(t *testing.T) {
	svc, st, disp := newAuthFixture(t)
	ctx := context.Background()

	user, token := register(t, svc)
	assert.NotZero(t, user.ID)
	assert.NotEmpty(t, token)
	assert.False(t, user.Activated())

	// Activation code was mailed.
	require.Equal(t, 1, disp.count())
	code := codeRe.FindString(disp.last().body)
	require.Len(t, code, 6)

	assert.ErrorIs(t, svc.Activate(ctx, user.Email, "999999x"), ErrInvalidCode)
	require.NoError(t, svc.Activate(ctx, user.Email, code))

	stored, err := st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Activated())
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	ctx := context.Background()

	cases := []models.RegisterRequest{
		{LastName: "K", Phone: "+1", Email: "a@b.c", Password: "longenough"},          // missing fname
		{FirstName: "A", LastName: "K", Email: "a@b.c", Password: "longenough"},       // missing phone
		{FirstName: "A", LastName: "K", Phone: "+1", Password: "longenough"},          // missing email
		{FirstName: "A", LastName: "K", Phone: "+1", Email: "a@b.c", Password: "abc"}, // short password
		{FirstName: "A", LastName: "K", Phone: "+1", Password: "longenough", Email: "not-an-email"},
	}
	for _, req := range cases {
		_, _, err := svc.Register(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	ctx := context.Background()
	register(t, svc)

	_, _, err := svc.Register(ctx, models.RegisterRequest{
		FirstName: "Bilal", LastName: "R", Phone: "+212600000001",
		Email: "bilal@example.com", Password: "s3cretpw",
	})
	assert.ErrorIs(t, err, store.ErrPhoneTaken)
}

func TestLogin(t *testing.T) {
	svc, _, disp := newAuthFixture(t)
	ctx := context.Background()

	user, _ := register(t, svc)

	// Unactivated accounts may not log in.
	_, _, err := svc.Login(ctx, models.LoginRequest{Email: user.Email, Password: "s3cretpw"})
	assert.ErrorIs(t, err, ErrNotActivated)

	code := codeRe.FindString(disp.last().body)
	require.NoError(t, svc.Activate(ctx, user.Email, code))

	_, _, err = svc.Login(ctx, models.LoginRequest{Email: user.Email, Password: "wrongpass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, models.LoginRequest{Email: "ghost@example.com", Password: "s3cretpw"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	logged, token, err := svc.Login(ctx, models.LoginRequest{Email: user.Email, Password: "s3cretpw"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)

	id, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)
}

func TestLogout(t *testing.T) {
	svc, st, _ := newAuthFixture(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, models.RegisterRequest{
		FirstName: "Amina", LastName: "K", Phone: "+212600000001",
		Email: "amina@example.com", Password: "s3cretpw",
		FirebaseToken: "fcm-amina",
	})
	require.NoError(t, err)

	tok, err := st.GetFirebaseTokenByPhone(ctx, user.Phone)
	require.NoError(t, err)
	require.Equal(t, "fcm-amina", tok)

	require.NoError(t, svc.Logout(ctx, user.ID, "fcm-amina"))
	_, err = st.GetFirebaseTokenByPhone(ctx, user.Phone)
	assert.ErrorIs(t, err, store.ErrTokenNotFound)

	// Logging out without a device token changes nothing.
	assert.NoError(t, svc.Logout(ctx, user.ID, ""))

	assert.ErrorIs(t, svc.Logout(ctx, 999, "fcm-amina"), ErrUserNotFound)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.ParseToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewAuthService(store.NewMemory(), &fakeDispatcher{}, "other-secret", time.Hour)
	_, token := register(t, other)

	// Token signed with a different secret.
	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestForgetPassword(t *testing.T) {
	svc, _, disp := newAuthFixture(t)
	ctx := context.Background()

	user, _ := register(t, svc)
	code := codeRe.FindString(disp.last().body)
	require.NoError(t, svc.Activate(ctx, user.Email, code))

	require.NoError(t, svc.ForgetPassword(ctx, user.Email))

	// Old password no longer works.
	_, _, err := svc.Login(ctx, models.LoginRequest{Email: user.Email, Password: "s3cretpw"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.ErrorIs(t, svc.ForgetPassword(ctx, "ghost@example.com"), ErrUserNotFound)
}

func TestResetPassword(t *testing.T) {
	svc, _, disp := newAuthFixture(t)
	ctx := context.Background()

	user, _ := register(t, svc)
	code := codeRe.FindString(disp.last().body)
	require.NoError(t, svc.Activate(ctx, user.Email, code))

	assert.ErrorIs(t, svc.ResetPassword(ctx, user.ID, "wrongpass", "newpassword"), ErrWrongPassword)
	assert.ErrorIs(t, svc.ResetPassword(ctx, user.ID, "s3cretpw", "tiny"), ErrInvalidInput)

	require.NoError(t, svc.ResetPassword(ctx, user.ID, "s3cretpw", "newpassword"))

	_, _, err := svc.Login(ctx, models.LoginRequest{Email: user.Email, Password: "newpassword"})
	require.NoError(t, err)
}
