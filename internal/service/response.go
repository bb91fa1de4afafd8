package service

import (
	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/utils"
)

// NewCardResponse projects a card for display; the full number never leaves the service.
func NewCardResponse(card models.Card) models.CardResponse {
	return models.CardResponse{
		ID:             card.ID,
		Masked:         utils.MaskNumber(card.LastDigits),
		CardHolderName: card.HolderName,
		Balance:        card.Balance,
		ExpiryDate:     card.ExpiryDate.Format("2006-01-02"),
		Status:         card.Status,
	}
}
