package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

// Config holds SMTP settings for the admin notification mailer
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AdminTo  string
}

// Notifier sends the admin notification email for completed payments
type Notifier struct {
	config Config
	dialer *gomail.Dialer
	logger ports.Logger
}

// NewNotifier creates a new SMTP notifier
func NewNotifier(config Config, logger ports.Logger) *Notifier {
	return &Notifier{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
		logger: logger,
	}
}

// Notify emails the admin a summary of the completed payment
func (n *Notifier) Notify(_ context.Context, snap models.Snapshot) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.config.From)
	m.SetHeader("To", n.config.AdminTo)
	m.SetHeader("Subject", fmt.Sprintf("Payment received: %s (%s)", snap.TransactionID, snap.Provider))
	m.SetBody("text/html", n.renderBody(snap))

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send admin notification: %w", err)
	}

	n.logger.Info("admin notification sent",
		ports.String("transaction_id", snap.TransactionID))
	return nil
}

func (n *Notifier) renderBody(snap models.Snapshot) string {
	phone := snap.Customer.Phone
	if phone == "" {
		phone = "-"
	}
	return fmt.Sprintf(`
		<h3>New completed payment</h3>
		<table>
			<tr><td>Transaction</td><td>%s</td></tr>
			<tr><td>Provider</td><td>%s</td></tr>
			<tr><td>Amount</td><td>%s</td></tr>
			<tr><td>Customer</td><td>%s (%s, %s)</td></tr>
			<tr><td>Plan</td><td>%s %s %s</td></tr>
			<tr><td>Completed at</td><td>%s</td></tr>
		</table>`,
		snap.TransactionID,
		snap.Provider,
		snap.Amount.StringFixed(2),
		snap.Customer.Name, snap.Customer.Email, phone,
		snap.Plan.Plan, snap.Plan.Duration, snap.Plan.AddOns,
		snap.CompletedAt.Format("2006-01-02 15:04:05 MST"),
	)
}

var _ ports.Notifier = (*Notifier)(nil)
