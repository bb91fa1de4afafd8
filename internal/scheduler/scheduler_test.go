package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCounter struct {
	mock.Mock
}

func (m *MockCounter) PendingCounts(ctx context.Context) (map[models.CardStatus]int, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).(map[models.CardStatus]int)
	return counts, args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendPendingDigest(to string, pendingActive, pendingBlock int, at time.Time) error {
	args := m.Called(to, pendingActive, pendingBlock, at)
	return args.Error(0)
}

func newTestScheduler(counter *MockCounter, sender *MockSender) *Scheduler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := New(counter, sender, "admin@example.com", log)
	s.now = func() time.Time { return time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestSendDigest(t *testing.T) {
	counter := &MockCounter{}
	sender := &MockSender{}
	s := newTestScheduler(counter, sender)

	counter.On("PendingCounts", mock.Anything).Return(map[models.CardStatus]int{
		models.StatusPendingActive: 2,
		models.StatusPendingBlock:  1,
	}, nil)
	sender.On("SendPendingDigest", "admin@example.com", 2, 1, s.now()).Return(nil)

	require.NoError(t, s.SendDigest(context.Background()))
	sender.AssertExpectations(t)
}

func TestSendDigest_NothingPending(t *testing.T) {
	counter := &MockCounter{}
	sender := &MockSender{}
	s := newTestScheduler(counter, sender)

	counter.On("PendingCounts", mock.Anything).Return(map[models.CardStatus]int{}, nil)

	require.NoError(t, s.SendDigest(context.Background()))
	sender.AssertNotCalled(t, "SendPendingDigest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendDigest_CountFailure(t *testing.T) {
	counter := &MockCounter{}
	sender := &MockSender{}
	s := newTestScheduler(counter, sender)

	boom := errors.New("db down")
	counter.On("PendingCounts", mock.Anything).Return(nil, boom)

	assert.ErrorIs(t, s.SendDigest(context.Background()), boom)
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := newTestScheduler(&MockCounter{}, &MockSender{})

	assert.Error(t, s.Start("every tuesday"))
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(&MockCounter{}, &MockSender{})

	require.NoError(t, s.Start("0 9 * * *"))
	assert.Len(t, s.cron.Entries(), 1)
	<-s.Stop().Done()
}
