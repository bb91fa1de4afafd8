package service

import "github.com/Dan9191/card-service/internal/models"

// Action is a lifecycle operation applied to a card.
type Action string

const (
	ActionApprove      Action = "approve"
	ActionRequestBlock Action = "request_block"
	ActionConfirmBlock Action = "confirm_block"
	ActionActivate     Action = "activate"
)

type outcome struct {
	next models.CardStatus
	err  error
}

func moveTo(status models.CardStatus) outcome { return outcome{next: status} }
func reject(err error) outcome                { return outcome{err: err} }

// transitions holds the outcome of every (action, status) pair.
var transitions = map[Action]map[models.CardStatus]outcome{
	ActionApprove: {
		models.StatusPendingActive: moveTo(models.StatusActive),
		models.StatusActive:        reject(models.ErrCardInvalidStatus),
		models.StatusPendingBlock:  reject(models.ErrCardInvalidStatus),
		models.StatusBlocked:       reject(models.ErrCardInvalidStatus),
	},
	ActionRequestBlock: {
		models.StatusPendingActive: reject(models.ErrCardInvalidStatus),
		models.StatusActive:        moveTo(models.StatusPendingBlock),
		models.StatusPendingBlock:  reject(models.ErrCardAlreadyBlocked),
		models.StatusBlocked:       reject(models.ErrCardAlreadyBlocked),
	},
	ActionConfirmBlock: {
		models.StatusPendingActive: reject(models.ErrCardInvalidStatus),
		models.StatusActive:        reject(models.ErrCardAlreadyActive),
		models.StatusPendingBlock:  moveTo(models.StatusBlocked),
		models.StatusBlocked:       reject(models.ErrCardAlreadyBlocked),
	},
	ActionActivate: {
		models.StatusPendingActive: reject(models.ErrCardInvalidStatus),
		models.StatusActive:        reject(models.ErrCardAlreadyActive),
		models.StatusPendingBlock:  reject(models.ErrCardPendingBlock),
		models.StatusBlocked:       moveTo(models.StatusActive),
	},
}

// Transition returns the status a card in current moves to under action.
// Unknown statuses or actions are invalid-status conflicts.
func Transition(current models.CardStatus, action Action) (models.CardStatus, error) {
	out, ok := transitions[action][current]
	if !ok {
		return current, models.ErrCardInvalidStatus
	}
	if out.err != nil {
		return current, out.err
	}
	return out.next, nil
}
