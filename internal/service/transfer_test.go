package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore records the order in which cards are locked.
type recordingStore struct {
	repository.Store
	mu     sync.Mutex
	locked []int64
}

func (s *recordingStore) InTx(ctx context.Context, opts repository.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return s.Store.InTx(ctx, opts, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, recordingTx{Tx: tx, store: s})
	})
}

func (s *recordingStore) reset() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked := s.locked
	s.locked = nil
	return locked
}

type recordingTx struct {
	repository.Tx
	store *recordingStore
}

func (t recordingTx) Cards() repository.CardRepository {
	return recordingCards{CardRepository: t.Tx.Cards(), store: t.store}
}

type recordingCards struct {
	repository.CardRepository
	store *recordingStore
}

func (c recordingCards) FindByIDForUpdate(ctx context.Context, id int64) (models.Card, error) {
	c.store.mu.Lock()
	c.store.locked = append(c.store.locked, id)
	c.store.mu.Unlock()
	return c.CardRepository.FindByIDForUpdate(ctx, id)
}

func transferReq(target int64, amount string) models.TransferRequest {
	return models.TransferRequest{TargetCardID: target, Amount: decimal.RequireFromString(amount)}
}

func assertBalance(t *testing.T, f *fixture, id int64, want string) {
	t.Helper()
	got := f.card(t, id).Balance
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "card %d balance = %s, want %s", id, got, want)
}

func TestTransfer_MovesFunds(t *testing.T) {
	f := newFixture(t, nil)
	user := f.addUser(t, "john", "John", "Doe", models.RoleUser)
	from := f.addCard(t, user, "500.00", models.StatusActive)
	to := f.addCard(t, user, "200.00", models.StatusActive)

	err := f.svc.Transfer(context.Background(), principal(user), from.ID, transferReq(to.ID, "100.00"))
	require.NoError(t, err)

	assertBalance(t, f, from.ID, "400.00")
	assertBalance(t, f, to.ID, "300.00")
}

func TestTransfer_ExactDecimal(t *testing.T) {
	f := newFixture(t, nil)
	user := f.addUser(t, "john", "John", "Doe", models.RoleUser)
	from := f.addCard(t, user, "0.30", models.StatusActive)
	to := f.addCard(t, user, "0.00", models.StatusActive)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.Transfer(context.Background(), principal(user), from.ID, transferReq(to.ID, "0.10")))
	}

	assertBalance(t, f, from.ID, "0")
	assertBalance(t, f, to.ID, "0.30")
}

func TestTransfer_TrailingZerosAccepted(t *testing.T) {
	f := newFixture(t, nil)
	user := f.addUser(t, "john", "John", "Doe", models.RoleUser)
	from := f.addCard(t, user, "500.00", models.StatusActive)
	to := f.addCard(t, user, "200.00", models.StatusActive)

	err := f.svc.Transfer(context.Background(), principal(user), from.ID, transferReq(to.ID, "0.100"))
	require.NoError(t, err)

	assertBalance(t, f, from.ID, "499.90")
	assertBalance(t, f, to.ID, "200.10")
}

func TestTransfer_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		fromStatus models.CardStatus
		toStatus   models.CardStatus
		fromBal    string
		otherOwner bool
		sameCard   bool
		amount     string
		want       error
	}{
		{
			name: "insufficient funds", fromStatus: models.StatusActive, toStatus: models.StatusActive,
			fromBal: "10.00", amount: "100.00", want: models.ErrInsufficientFunds,
		},
		{
			name: "insufficient funds wins over inactive", fromStatus: models.StatusBlocked, toStatus: models.StatusActive,
			fromBal: "10.00", amount: "100.00", want: models.ErrInsufficientFunds,
		},
		{
			name: "blocked target", fromStatus: models.StatusActive, toStatus: models.StatusBlocked,
			fromBal: "500.00", otherOwner: true, amount: "100.00", want: models.ErrCardNotActive,
		},
		{
			name: "pending source", fromStatus: models.StatusPendingBlock, toStatus: models.StatusActive,
			fromBal: "500.00", amount: "100.00", want: models.ErrCardNotActive,
		},
		{
			name: "different cardholders", fromStatus: models.StatusActive, toStatus: models.StatusActive,
			fromBal: "500.00", otherOwner: true, amount: "100.00", want: models.ErrDifferentCardholders,
		},
		{
			name: "same card", fromStatus: models.StatusActive,
			fromBal: "500.00", sameCard: true, amount: "100.00", want: models.ErrSameCardTransfer,
		},
		{
			name: "same card short of funds", fromStatus: models.StatusActive,
			fromBal: "5.00", sameCard: true, amount: "100.00", want: models.ErrInsufficientFunds,
		},
		{
			name: "zero amount", fromStatus: models.StatusActive, toStatus: models.StatusActive,
			fromBal: "500.00", amount: "0", want: models.ErrInvalidAmount,
		},
		{
			name: "sub-cent amount", fromStatus: models.StatusActive, toStatus: models.StatusActive,
			fromBal: "500.00", amount: "0.005", want: models.ErrInvalidAmount,
		},
		{
			name: "negative amount", fromStatus: models.StatusActive, toStatus: models.StatusActive,
			fromBal: "500.00", amount: "-1.00", want: models.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			user := f.addUser(t, "john", "John", "Doe", models.RoleUser)
			from := f.addCard(t, user, tt.fromBal, tt.fromStatus)
			to := from
			if !tt.sameCard {
				owner := user
				if tt.otherOwner {
					owner = f.addUser(t, "jane", "Jane", "Roe", models.RoleUser)
				}
				to = f.addCard(t, owner, "200.00", tt.toStatus)
			}
			before := []models.Card{f.card(t, from.ID), f.card(t, to.ID)}

			err := f.svc.Transfer(context.Background(), principal(user), from.ID, transferReq(to.ID, tt.amount))
			assert.ErrorIs(t, err, tt.want)

			after := []models.Card{f.card(t, from.ID), f.card(t, to.ID)}
			assert.Equal(t, before, after)
		})
	}
}

func TestTransfer_MissingCards(t *testing.T) {
	f := newFixture(t, nil)
	user := f.addUser(t, "john", "John", "Doe", models.RoleUser)
	card := f.addCard(t, user, "100.00", models.StatusActive)
	ctx := context.Background()

	err := f.svc.Transfer(ctx, principal(user), card.ID, transferReq(999, "1.00"))
	assert.ErrorIs(t, err, models.ErrRecipientCardNotFound)

	err = f.svc.Transfer(ctx, principal(user), 999, transferReq(card.ID, "1.00"))
	assert.ErrorIs(t, err, models.ErrSenderCardNotFound)

	assertBalance(t, f, card.ID, "100.00")
}

func TestTransfer_SourceMustBelongToCaller(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.addUser(t, "john", "John", "Doe", models.RoleUser)
	intruder := f.addUser(t, "mallory", "Mallory", "Doe", models.RoleUser)
	from := f.addCard(t, owner, "100.00", models.StatusActive)
	to := f.addCard(t, intruder, "0.00", models.StatusActive)

	err := f.svc.Transfer(context.Background(), principal(intruder), from.ID, transferReq(to.ID, "50.00"))
	assert.ErrorIs(t, err, models.ErrSenderCardNotFound)
	assertBalance(t, f, from.ID, "100.00")
}

func TestTransfer_LocksInAscendingOrder(t *testing.T) {
	f := newFixture(t, nil)
	user := f.addUser(t, "john", "John", "Doe", models.RoleUser)
	for i := 0; i < 7; i++ {
		f.addCard(t, user, "100.00", models.StatusActive)
	}
	rec := &recordingStore{Store: f.store}
	f.svc.store = rec
	ctx := context.Background()

	require.NoError(t, f.svc.Transfer(ctx, principal(user), 7, transferReq(3, "10.00")))
	assert.Equal(t, []int64{3, 7}, rec.reset())

	require.NoError(t, f.svc.Transfer(ctx, principal(user), 3, transferReq(7, "10.00")))
	assert.Equal(t, []int64{3, 7}, rec.reset())

	err := f.svc.Transfer(ctx, principal(user), 5, transferReq(5, "10.00"))
	assert.ErrorIs(t, err, models.ErrSameCardTransfer)
	assert.Equal(t, []int64{5}, rec.reset())
}

func TestTransfer_LockTimeout(t *testing.T) {
	f := newFixture(t, nil)
	user := f.addUser(t, "john", "John", "Doe", models.RoleUser)
	from := f.addCard(t, user, "100.00", models.StatusActive)
	to := f.addCard(t, user, "100.00", models.StatusActive)
	f.svc.transferTimeout = 50 * time.Millisecond

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.store.InTx(context.Background(), repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.Cards().FindByIDForUpdate(ctx, to.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := f.svc.Transfer(context.Background(), principal(user), from.ID, transferReq(to.ID, "10.00"))
	assert.ErrorIs(t, err, models.ErrLockTimeout)
	assert.Equal(t, models.KindTransient, models.KindOf(err))

	close(release)
	require.NoError(t, <-done)
	assertBalance(t, f, from.ID, "100.00")
	assertBalance(t, f, to.ID, "100.00")
}

func TestTransfer_ConcurrentOpposingTransfers(t *testing.T) {
	f := newFixture(t, nil)
	user := f.addUser(t, "john", "John", "Doe", models.RoleUser)
	a := f.addCard(t, user, "1000.00", models.StatusActive)
	b := f.addCard(t, user, "1000.00", models.StatusActive)
	p := principal(user)

	const rounds = 50
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- f.svc.Transfer(context.Background(), p, a.ID, transferReq(b.ID, "1.00"))
		}()
		go func() {
			defer wg.Done()
			errs <- f.svc.Transfer(context.Background(), p, b.ID, transferReq(a.ID, "1.00"))
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assertBalance(t, f, a.ID, "1000.00")
	assertBalance(t, f, b.ID, "1000.00")
}
