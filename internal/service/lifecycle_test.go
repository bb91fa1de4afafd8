package service

import (
	"testing"

	"github.com/Dan9191/card-service/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		action  Action
		current models.CardStatus
		next    models.CardStatus
		err     error
	}{
		{ActionApprove, models.StatusPendingActive, models.StatusActive, nil},
		{ActionApprove, models.StatusActive, "", models.ErrCardInvalidStatus},
		{ActionApprove, models.StatusPendingBlock, "", models.ErrCardInvalidStatus},
		{ActionApprove, models.StatusBlocked, "", models.ErrCardInvalidStatus},

		{ActionRequestBlock, models.StatusActive, models.StatusPendingBlock, nil},
		{ActionRequestBlock, models.StatusPendingBlock, "", models.ErrCardAlreadyBlocked},
		{ActionRequestBlock, models.StatusBlocked, "", models.ErrCardAlreadyBlocked},
		{ActionRequestBlock, models.StatusPendingActive, "", models.ErrCardInvalidStatus},

		{ActionConfirmBlock, models.StatusPendingBlock, models.StatusBlocked, nil},
		{ActionConfirmBlock, models.StatusActive, "", models.ErrCardAlreadyActive},
		{ActionConfirmBlock, models.StatusBlocked, "", models.ErrCardAlreadyBlocked},
		{ActionConfirmBlock, models.StatusPendingActive, "", models.ErrCardInvalidStatus},

		{ActionActivate, models.StatusBlocked, models.StatusActive, nil},
		{ActionActivate, models.StatusActive, "", models.ErrCardAlreadyActive},
		{ActionActivate, models.StatusPendingBlock, "", models.ErrCardPendingBlock},
		{ActionActivate, models.StatusPendingActive, "", models.ErrCardInvalidStatus},
	}

	for _, tc := range cases {
		t.Run(string(tc.action)+"/"+string(tc.current), func(t *testing.T) {
			next, err := Transition(tc.current, tc.action)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.Equal(t, tc.current, next)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.next, next)
		})
	}
}

func TestTransition_EveryPairIsDeclared(t *testing.T) {
	for _, action := range []Action{ActionApprove, ActionRequestBlock, ActionConfirmBlock, ActionActivate} {
		for _, status := range models.Statuses {
			_, ok := transitions[action][status]
			assert.True(t, ok, "%s from %s", action, status)
		}
	}
}

func TestTransition_Unknown(t *testing.T) {
	_, err := Transition("EXPIRED", ActionActivate)
	assert.ErrorIs(t, err, models.ErrCardInvalidStatus)

	_, err = Transition(models.StatusActive, "freeze")
	assert.ErrorIs(t, err, models.ErrCardInvalidStatus)
}
