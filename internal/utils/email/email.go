package email

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/Dan9191/card-service/internal/config"
	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/utils"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	s := &Sender{
		cfg:    cfg,
		logger: logger,
	}
	s.send = s.sendSMTP
	return s
}

func (s *Sender) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	return e.Send(addr, auth)
}

// CardBlocked tells the owner that their card has been blocked.
func (s *Sender) CardBlocked(_ context.Context, owner models.User, card models.Card) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{owner.Email}
	e.Subject = "Card Blocked Notification"

	body := fmt.Sprintf("Dear %s,\n\n", owner.HolderName())
	body += fmt.Sprintf(
		"As you requested, your card %s has been blocked.\n"+
			"Blocked at: %s\n"+
			"Contact the bank to have it activated again.\n",
		utils.MaskNumber(card.LastDigits), card.UpdatedAt.Format("2006-01-02 15:04:05"),
	)
	body += "\nBest regards,\nCard Service"
	e.Text = []byte(body)

	return s.deliver(e)
}

// SendPendingDigest tells the administrator how many cards await a decision.
func (s *Sender) SendPendingDigest(to string, pendingActive, pendingBlock int, at time.Time) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Pending Card Requests"

	body := fmt.Sprintf(
		"Cards awaiting approval as of %s:\n\n"+
			"Activation requests: %d\n"+
			"Block requests: %d\n",
		at.Format("2006-01-02 15:04"), pendingActive, pendingBlock,
	)
	body += "\nCard Service"
	e.Text = []byte(body)

	return s.deliver(e)
}

func (s *Sender) deliver(e *email.Email) error {
	to := e.To[0]
	if err := s.send(e); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
