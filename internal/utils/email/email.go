package email

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/yousifm93/income-engine/internal/config"
	"github.com/yousifm93/income-engine/internal/models"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// CalculationReady notifies the configured recipient that a qualifying-income
// calculation has been persisted. Implements service.Notifier.
func (s *Sender) CalculationReady(calc *models.IncomeCalculation) {
	if err := s.sendCalculationReady(s.cfg.NotifyEmail, calc); err != nil {
		s.logger.Errorf("Failed to send calculation notification: %v", err)
	}
}

func (s *Sender) sendCalculationReady(to string, calc *models.IncomeCalculation) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	if len(calc.Warnings) > 0 || len(calc.MissingInputs) > 0 {
		e.Subject = fmt.Sprintf("Income calculation ready (with caveats) - borrower %s", calc.BorrowerID)
	} else {
		e.Subject = fmt.Sprintf("Income calculation ready - borrower %s", calc.BorrowerID)
	}

	body := fmt.Sprintf(
		"A qualifying-income calculation has completed.\n\n"+
			"Borrower: %s\n"+
			"Agency: %s\n"+
			"Loan program: %s\n"+
			"Qualifying monthly income: %.2f\n"+
			"Confidence: %.0f%%\n"+
			"Components: %d\n",
		calc.BorrowerID, calc.Agency, calc.LoanProgram,
		calc.ResultMonthlyIncome, calc.Confidence*100, len(calc.Components),
	)
	if len(calc.MissingInputs) > 0 {
		body += "\nMissing inputs:\n"
		for _, m := range calc.MissingInputs {
			body += fmt.Sprintf("  - %s\n", m)
		}
	}
	if len(calc.Warnings) > 0 {
		body += "\nWarnings:\n"
		for _, w := range calc.Warnings {
			body += fmt.Sprintf("  - %s\n", w.Message)
		}
	}
	body += fmt.Sprintf("\nCalculation id: %s\n", calc.ID)
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
