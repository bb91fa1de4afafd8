package service

import (
	"context"
	"time"

	"github.com/Dan9191/card-service/internal/metrics"
	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/Dan9191/card-service/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Encrypter turns a plaintext card number into its stored form.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Notifier tells card owners about lifecycle events.
type Notifier interface {
	CardBlocked(ctx context.Context, owner models.User, card models.Card) error
}

// CardService handles card lifecycle and transfers
type CardService struct {
	store           repository.Store
	gen             *NumberGenerator
	enc             Encrypter
	notifier        Notifier
	log             *logrus.Logger
	transferTimeout time.Duration
	now             func() time.Time
}

// NewCardService initializes a new card service. notifier may be nil.
func NewCardService(store repository.Store, gen *NumberGenerator, enc Encrypter, notifier Notifier,
	log *logrus.Logger, transferTimeout time.Duration) *CardService {
	return &CardService{
		store:           store,
		gen:             gen,
		enc:             enc,
		notifier:        notifier,
		log:             log,
		transferTimeout: transferTimeout,
		now:             time.Now,
	}
}

// RequestCard issues a card for the caller in PENDING_ACTIVE status.
func (s *CardService) RequestCard(ctx context.Context, p models.Principal) (models.CardResponse, error) {
	var card models.Card
	err := s.store.InTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		user, err := tx.Users().FindByID(ctx, p.UserID)
		if err != nil {
			return err
		}
		pending, err := tx.Cards().ExistsByOwnerAndStatus(ctx, user.ID, models.StatusPendingActive)
		if err != nil {
			return err
		}
		if pending {
			return models.ErrCardPendingActive
		}

		number, digest, attempts, err := s.gen.GenerateUnique(ctx, tx.Cards())
		if err != nil {
			return err
		}
		metrics.ObserveNumberAttempts(attempts)

		encrypted, err := s.enc.Encrypt(number)
		if err != nil {
			return err
		}
		today := s.now().UTC().Truncate(24 * time.Hour)
		card = models.Card{
			Number:       encrypted,
			LastDigits:   utils.LastDigits(number),
			NumberDigest: digest,
			OwnerID:      user.ID,
			HolderName:   user.HolderName(),
			Balance:      decimal.Zero,
			Status:       models.StatusPendingActive,
			ExpiryDate:   today.AddDate(models.CardValidity, 0, 0),
		}
		return tx.Cards().Create(ctx, &card)
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", p.UserID).Warn("Card request rejected")
		return models.CardResponse{}, err
	}

	s.log.WithFields(logrus.Fields{"card_id": card.ID, "user_id": p.UserID}).Info("Card requested")
	return NewCardResponse(card), nil
}

// ApproveCard activates a card awaiting activation.
func (s *CardService) ApproveCard(ctx context.Context, p models.Principal, cardID int64) (models.CardResponse, error) {
	if !p.IsAdmin() {
		return models.CardResponse{}, models.ErrForbidden
	}
	card, _, err := s.transition(ctx, cardID, ActionApprove, func(ctx context.Context, tx repository.Tx) (models.Card, error) {
		return tx.Cards().FindByID(ctx, cardID)
	})
	return s.respond(card, err)
}

// RequestBlock asks an administrator to block one of the caller's cards.
func (s *CardService) RequestBlock(ctx context.Context, p models.Principal, cardID int64) (models.CardResponse, error) {
	card, _, err := s.transition(ctx, cardID, ActionRequestBlock, func(ctx context.Context, tx repository.Tx) (models.Card, error) {
		return tx.Cards().FindByIDAndOwner(ctx, cardID, p.UserID)
	})
	return s.respond(card, err)
}

// ConfirmBlock blocks a card whose owner requested it and notifies the owner.
func (s *CardService) ConfirmBlock(ctx context.Context, p models.Principal, cardID int64) (models.CardResponse, error) {
	if !p.IsAdmin() {
		return models.CardResponse{}, models.ErrForbidden
	}
	card, owner, err := s.transition(ctx, cardID, ActionConfirmBlock, func(ctx context.Context, tx repository.Tx) (models.Card, error) {
		return tx.Cards().FindByID(ctx, cardID)
	})
	if err == nil && s.notifier != nil && owner.Email != "" {
		if nerr := s.notifier.CardBlocked(ctx, owner, card); nerr != nil {
			s.log.WithError(nerr).WithField("card_id", card.ID).Error("Failed to notify card owner")
		}
	}
	return s.respond(card, err)
}

// ActivateCard unblocks a blocked card.
func (s *CardService) ActivateCard(ctx context.Context, p models.Principal, cardID int64) (models.CardResponse, error) {
	if !p.IsAdmin() {
		return models.CardResponse{}, models.ErrForbidden
	}
	card, _, err := s.transition(ctx, cardID, ActionActivate, func(ctx context.Context, tx repository.Tx) (models.Card, error) {
		return tx.Cards().FindByID(ctx, cardID)
	})
	return s.respond(card, err)
}

// transition loads a card inside a fresh unit of work, applies action to it
// and persists the result guarded by the card version.
func (s *CardService) transition(ctx context.Context, cardID int64, action Action,
	load func(ctx context.Context, tx repository.Tx) (models.Card, error)) (models.Card, models.User, error) {
	var updated models.Card
	var owner models.User
	err := s.store.InTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		card, err := load(ctx, tx)
		if err != nil {
			return err
		}
		next, err := Transition(card.Status, action)
		if err != nil {
			return err
		}
		if updated, err = tx.Cards().Update(ctx, card.WithStatus(next)); err != nil {
			return err
		}
		owner, err = tx.Users().FindByID(ctx, card.OwnerID)
		return err
	})
	metrics.ObserveTransition(string(action), err)

	fields := logrus.Fields{"action": action, "card_id": cardID}
	if err != nil {
		s.log.WithFields(fields).WithError(err).Warn("Card transition rejected")
		return models.Card{}, models.User{}, err
	}
	fields["status"] = updated.Status
	s.log.WithFields(fields).Info("Card transition applied")
	return updated, owner, nil
}

func (s *CardService) respond(card models.Card, err error) (models.CardResponse, error) {
	if err != nil {
		return models.CardResponse{}, err
	}
	return NewCardResponse(card), nil
}

// DeleteCard removes a card permanently.
func (s *CardService) DeleteCard(ctx context.Context, p models.Principal, cardID int64) error {
	if !p.IsAdmin() {
		return models.ErrForbidden
	}
	err := s.store.InTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		deleted, err := tx.Cards().DeleteByID(ctx, cardID)
		if err != nil {
			return err
		}
		if !deleted {
			return models.ErrCardNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"card_id": cardID, "admin": p.Username}).Info("Card deleted")
	return nil
}

// GetBalance returns the balance of one of the caller's cards.
func (s *CardService) GetBalance(ctx context.Context, p models.Principal, cardID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.store.InTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		card, err := tx.Cards().FindByIDAndOwner(ctx, cardID, p.UserID)
		if err != nil {
			return err
		}
		balance = card.Balance
		return nil
	})
	return balance, err
}

// ListUserCards returns the caller's cards, newest first.
func (s *CardService) ListUserCards(ctx context.Context, p models.Principal, page models.PageRequest) (models.Page, error) {
	return s.list(ctx, page, func(ctx context.Context, tx repository.Tx, page models.PageRequest) ([]models.Card, int, error) {
		return tx.Cards().ListByOwner(ctx, p.UserID, page)
	})
}

// ListAllCards returns every card, newest first.
func (s *CardService) ListAllCards(ctx context.Context, p models.Principal, page models.PageRequest) (models.Page, error) {
	if !p.IsAdmin() {
		return models.Page{}, models.ErrForbidden
	}
	return s.list(ctx, page, func(ctx context.Context, tx repository.Tx, page models.PageRequest) ([]models.Card, int, error) {
		return tx.Cards().ListAll(ctx, page)
	})
}

func (s *CardService) list(ctx context.Context, page models.PageRequest,
	query func(ctx context.Context, tx repository.Tx, page models.PageRequest) ([]models.Card, int, error)) (models.Page, error) {
	page = normalizePage(page)
	var cards []models.Card
	var total int
	err := s.store.InTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		cards, total, err = query(ctx, tx, page)
		return err
	})
	if err != nil {
		return models.Page{}, err
	}

	items := make([]models.CardResponse, 0, len(cards))
	for _, card := range cards {
		items = append(items, NewCardResponse(card))
	}
	return models.Page{Items: items, Total: total, Number: page.Number, Size: page.Size}, nil
}

// PendingCounts returns how many cards await activation and block confirmation.
func (s *CardService) PendingCounts(ctx context.Context) (map[models.CardStatus]int, error) {
	var counts map[models.CardStatus]int
	err := s.store.InTx(ctx, repository.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		counts, err = tx.Cards().CountByStatus(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return map[models.CardStatus]int{
		models.StatusPendingActive: counts[models.StatusPendingActive],
		models.StatusPendingBlock:  counts[models.StatusPendingBlock],
	}, nil
}

func normalizePage(page models.PageRequest) models.PageRequest {
	if page.Number < 0 {
		page.Number = 0
	}
	if page.Size <= 0 {
		page.Size = defaultPageSize
	}
	if page.Size > maxPageSize {
		page.Size = maxPageSize
	}
	return page
}
