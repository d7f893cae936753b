package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerpay/peerpay/internal/cache"
	"github.com/peerpay/peerpay/internal/models"
	"github.com/peerpay/peerpay/internal/store"
)

type delivery struct {
	to      string
	subject string
	body    string
}

type fakeDispatcher struct {
	mu         sync.Mutex
	deliveries []delivery
	fail       bool
}

func (f *fakeDispatcher) Deliver(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unreachable")
	}
	f.deliveries = append(f.deliveries, delivery{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeDispatcher) last() delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deliveries[len(f.deliveries)-1]
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deliveries)
}

var codeRe = regexp.MustCompile(`\d{6}`)

type transferFixture struct {
	svc    *TransferService
	store  *store.Memory
	codes  *cache.Memory
	mailer *fakeDispatcher
	sender *models.User
	recv   *models.User
}

func newTransferFixture(t *testing.T, senderBalance, receiverBalance int64) *transferFixture {
	t.Helper()

	st := store.NewMemory()
	codes := cache.NewMemory()
	t.Cleanup(codes.Close)
	disp := &fakeDispatcher{}

	sender, err := st.CreateUser(context.Background(), &models.User{
		FirstName: "Amina", LastName: "K", Phone: "+212600000001",
		Email: "amina@example.com", Balance: senderBalance,
	})
	require.NoError(t, err)
	recv, err := st.CreateUser(context.Background(), &models.User{
		FirstName: "Bilal", LastName: "R", Phone: "+212600000002",
		Email: "bilal@example.com", Balance: receiverBalance,
	})
	require.NoError(t, err)

	return &transferFixture{
		svc:    NewTransferService(st, codes, disp, 10*time.Minute),
		store:  st,
		codes:  codes,
		mailer: disp,
		sender: sender,
		recv:   recv,
	}
}

// initiate runs Initiate and returns the code that was mailed out.
func (f *transferFixture) initiate(t *testing.T, amount int64) string {
	t.Helper()
	require.NoError(t, f.svc.Initiate(context.Background(), f.sender.ID, f.recv.Phone, amount))
	code := codeRe.FindString(f.mailer.last().body)
	require.Len(t, code, 6)
	return code
}

func TestInitiateStoresAndMailsCode(t *testing.T) {
	f := newTransferFixture(t, 100, 50)
	ctx := context.Background()

	code := f.initiate(t, 30)

	assert.Equal(t, "amina@example.com", f.mailer.last().to)

	stored, err := f.codes.Get(ctx, codeKey(f.sender.ID))
	require.NoError(t, err)
	assert.Equal(t, code, stored)

	// No mutation yet.
	s, _ := f.store.GetUser(ctx, f.sender.ID)
	assert.Equal(t, int64(100), s.Balance)
}

func TestInitiateReceiverNotFound(t *testing.T) {
	f := newTransferFixture(t, 100, 50)

	err := f.svc.Initiate(context.Background(), f.sender.ID, "+999", 30)
	assert.ErrorIs(t, err, ErrReceiverNotFound)
	assert.Zero(t, f.mailer.count())
}

func TestInitiateSenderNotFound(t *testing.T) {
	f := newTransferFixture(t, 100, 50)

	err := f.svc.Initiate(context.Background(), 999, f.recv.Phone, 30)
	assert.ErrorIs(t, err, ErrSenderNotFound)
}

func TestInitiateBelowMinimum(t *testing.T) {
	f := newTransferFixture(t, 100, 50)

	for _, amount := range []int64{0, -5} {
		err := f.svc.Initiate(context.Background(), f.sender.ID, f.recv.Phone, amount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestInitiateSelf(t *testing.T) {
	f := newTransferFixture(t, 100, 50)

	err := f.svc.Initiate(context.Background(), f.sender.ID, f.sender.Phone, 30)
	assert.ErrorIs(t, err, ErrSelfTransfer)
}

func TestInitiateDispatchFailure(t *testing.T) {
	f := newTransferFixture(t, 100, 50)
	f.mailer.fail = true

	err := f.svc.Initiate(context.Background(), f.sender.ID, f.recv.Phone, 30)
	assert.ErrorIs(t, err, ErrDispatchFailed)
}

func TestInitiateOverwritesPendingCode(t *testing.T) {
	f := newTransferFixture(t, 100, 50)

	first := f.initiate(t, 30)
	second := f.initiate(t, 40)

	if first == second {
		t.Skip("codes collided, cannot distinguish overwrite")
	}

	// The stale code no longer confirms anything.
	_, _, err := f.svc.Confirm(context.Background(), f.sender.ID, f.recv.Phone, 30, first)
	assert.ErrorIs(t, err, ErrInvalidCode)

	// The fresh one does.
	_, _, err = f.svc.Confirm(context.Background(), f.sender.ID, f.recv.Phone, 40, second)
	require.NoError(t, err)
}

func TestConfirmScenario(t *testing.T) {
	// A=100, B=50; A sends 30 to B.
	f := newTransferFixture(t, 100, 50)
	ctx := context.Background()

	code := f.initiate(t, 30)

	txn, _, err := f.svc.Confirm(ctx, f.sender.ID, f.recv.Phone, 30, code)
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, f.sender.ID, txn.SenderID)
	assert.Equal(t, f.recv.ID, txn.ReceiverID)
	assert.Equal(t, int64(30), txn.Amount)
	assert.NotEmpty(t, txn.Reference)

	s, _ := f.store.GetUser(ctx, f.sender.ID)
	r, _ := f.store.GetUser(ctx, f.recv.ID)
	assert.Equal(t, int64(70), s.Balance)
	assert.Equal(t, int64(80), r.Balance)

	views, err := f.svc.History(ctx, f.sender.ID, models.DirectionSent)
	require.NoError(t, err)
	require.Len(t, views, 1)

	// Replaying the consumed code is rejected.
	_, _, err = f.svc.Confirm(ctx, f.sender.ID, f.recv.Phone, 30, code)
	assert.ErrorIs(t, err, ErrInvalidCode)

	// And no second transfer happened.
	s, _ = f.store.GetUser(ctx, f.sender.ID)
	assert.Equal(t, int64(70), s.Balance)
}

func TestConfirmWrongCode(t *testing.T) {
	f := newTransferFixture(t, 100, 50)
	ctx := context.Background()

	code := f.initiate(t, 30)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, _, err := f.svc.Confirm(ctx, f.sender.ID, f.recv.Phone, 30, wrong)
	assert.ErrorIs(t, err, ErrInvalidCode)

	s, _ := f.store.GetUser(ctx, f.sender.ID)
	r, _ := f.store.GetUser(ctx, f.recv.ID)
	assert.Equal(t, int64(100), s.Balance)
	assert.Equal(t, int64(50), r.Balance)

	// A mismatch does not consume the pending code.
	_, _, err = f.svc.Confirm(ctx, f.sender.ID, f.recv.Phone, 30, code)
	require.NoError(t, err)
}

func TestConfirmWithoutInitiate(t *testing.T) {
	f := newTransferFixture(t, 100, 50)

	_, _, err := f.svc.Confirm(context.Background(), f.sender.ID, f.recv.Phone, 30, "123456")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestConfirmExpiredCode(t *testing.T) {
	st := store.NewMemory()
	codes := cache.NewMemory()
	t.Cleanup(codes.Close)
	disp := &fakeDispatcher{}
	svc := NewTransferService(st, codes, disp, 10*time.Millisecond)

	ctx := context.Background()
	sender, err := st.CreateUser(ctx, &models.User{
		FirstName: "Amina", LastName: "K", Phone: "+1", Email: "a@example.com", Balance: 100,
	})
	require.NoError(t, err)
	recv, err := st.CreateUser(ctx, &models.User{
		FirstName: "Bilal", LastName: "R", Phone: "+2", Email: "b@example.com", Balance: 50,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Initiate(ctx, sender.ID, recv.Phone, 30))
	code := codeRe.FindString(disp.last().body)

	time.Sleep(25 * time.Millisecond)

	_, _, err = svc.Confirm(ctx, sender.ID, recv.Phone, 30, code)
	assert.ErrorIs(t, err, ErrInvalidCode)

	s, _ := st.GetUser(ctx, sender.ID)
	assert.Equal(t, int64(100), s.Balance)
}

func TestConfirmInsufficientBalance(t *testing.T) {
	f := newTransferFixture(t, 20, 50)
	ctx := context.Background()

	code := f.initiate(t, 30)

	_, _, err := f.svc.Confirm(ctx, f.sender.ID, f.recv.Phone, 30, code)
	assert.ErrorIs(t, err, ErrTransferRejected)

	s, _ := f.store.GetUser(ctx, f.sender.ID)
	r, _ := f.store.GetUser(ctx, f.recv.ID)
	assert.Equal(t, int64(20), s.Balance)
	assert.Equal(t, int64(50), r.Balance)

	// The matched code was consumed even though the engine rejected.
	_, _, err = f.svc.Confirm(ctx, f.sender.ID, f.recv.Phone, 30, code)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestConfirmReturnsReceiversFirebaseToken(t *testing.T) {
	f := newTransferFixture(t, 100, 50)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertFirebaseToken(ctx, f.recv.ID, "fcm-token-1"))

	code := f.initiate(t, 30)
	_, token, err := f.svc.Confirm(ctx, f.sender.ID, f.recv.Phone, 30, code)
	require.NoError(t, err)
	assert.Equal(t, "fcm-token-1", token)
}

func TestHistoryEmptyAndBadDirection(t *testing.T) {
	f := newTransferFixture(t, 100, 50)
	ctx := context.Background()

	views, err := f.svc.History(ctx, f.sender.ID, models.DirectionAll)
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = f.svc.History(ctx, f.sender.ID, models.Direction("bogus"))
	assert.ErrorIs(t, err, ErrBadDirection)

	_, err = f.svc.History(ctx, 999, models.DirectionAll)
	assert.ErrorIs(t, err, ErrSenderNotFound)
}

func TestRandomCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := randomCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}
