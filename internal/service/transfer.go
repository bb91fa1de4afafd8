package service

import (
	"context"
	"errors"

	"github.com/Dan9191/card-service/internal/metrics"
	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/sirupsen/logrus"
)

// Transfer moves req.Amount from the caller's card sourceID to req.TargetCardID.
//
// Both rows are locked in ascending ID order whatever the direction of the
// transfer, so two transfers over the same pair of cards never wait on each
// other in a cycle. Either both balances change or neither does.
func (s *CardService) Transfer(ctx context.Context, p models.Principal, sourceID int64, req models.TransferRequest) error {
	// Balances hold cents; a finer amount would be rounded on store.
	if !req.Amount.IsPositive() || !req.Amount.Equal(req.Amount.Truncate(models.AmountScale)) {
		metrics.ObserveTransfer(models.ErrInvalidAmount)
		return models.ErrInvalidAmount
	}

	err := s.store.InTx(ctx, repository.TxOptions{Timeout: s.transferTimeout}, func(ctx context.Context, tx repository.Tx) error {
		from, to, err := lockPair(ctx, tx.Cards(), sourceID, req.TargetCardID)
		if err != nil {
			return err
		}
		if from.OwnerID != p.UserID {
			return models.ErrSenderCardNotFound
		}
		if err := validateTransfer(from, to, req); err != nil {
			return err
		}

		if _, err := tx.Cards().Update(ctx, from.WithBalance(from.Balance.Sub(req.Amount))); err != nil {
			return err
		}
		_, err = tx.Cards().Update(ctx, to.WithBalance(to.Balance.Add(req.Amount)))
		return err
	})
	metrics.ObserveTransfer(err)

	fields := logrus.Fields{
		"from_card": sourceID,
		"to_card":   req.TargetCardID,
		"amount":    req.Amount.String(),
		"user_id":   p.UserID,
	}
	if err != nil {
		s.log.WithFields(fields).WithError(err).Warn("Transfer rejected")
		return err
	}
	s.log.WithFields(fields).Info("Transfer completed")
	return nil
}

// lockPair locks the lower ID first, then the higher one, and hands the
// cards back in transfer direction.
func lockPair(ctx context.Context, cards repository.CardRepository, sourceID, targetID int64) (from, to models.Card, err error) {
	lowID, highID := sourceID, targetID
	if highID < lowID {
		lowID, highID = highID, lowID
	}

	low, err := lockCard(ctx, cards, lowID, sourceID)
	if err != nil {
		return models.Card{}, models.Card{}, err
	}
	high := low
	if highID != lowID {
		if high, err = lockCard(ctx, cards, highID, sourceID); err != nil {
			return models.Card{}, models.Card{}, err
		}
	}

	if low.ID == sourceID {
		return low, high, nil
	}
	return high, low, nil
}

func lockCard(ctx context.Context, cards repository.CardRepository, id, sourceID int64) (models.Card, error) {
	card, err := cards.FindByIDForUpdate(ctx, id)
	if errors.Is(err, models.ErrCardNotFound) {
		if id == sourceID {
			return models.Card{}, models.ErrSenderCardNotFound
		}
		return models.Card{}, models.ErrRecipientCardNotFound
	}
	return card, err
}

// validateTransfer applies the business checks in a fixed order; the first
// failing check wins.
func validateTransfer(from, to models.Card, req models.TransferRequest) error {
	switch {
	case from.Balance.LessThan(req.Amount):
		return models.ErrInsufficientFunds
	case from.Status != models.StatusActive || to.Status != models.StatusActive:
		return models.ErrCardNotActive
	case from.HolderName != to.HolderName:
		return models.ErrDifferentCardholders
	case from.ID == to.ID:
		return models.ErrSameCardTransfer
	}
	return nil
}
