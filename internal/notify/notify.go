// Package notify sends a short acknowledgment mail to the contact address
// of a newly created access request. It is optional; the poller treats a
// send failure as a log line, never as a processing error.
package notify

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	gomail "gopkg.in/gomail.v2"

	"github.com/careconnect/mail-intake/internal/intake"
)

// ReceiptMailer implements intake.Notifier over SMTP.
type ReceiptMailer struct{}

// NewReceiptMailer returns a mailer using the configured SMTP account.
func NewReceiptMailer() *ReceiptMailer {
	return &ReceiptMailer{}
}

// RequestReceived mails a submission receipt to the request's contact.
func (m *ReceiptMailer) RequestReceived(req *intake.AccessRequest) error {
	smtpServer := viper.GetString("smtp.server")
	smtpPort := viper.GetInt("smtp.port")
	smtpUser := viper.GetString("smtp.username")
	smtpPass := viper.GetString("smtp.password")

	msg := gomail.NewMessage()
	msg.SetHeader("From", smtpUser)
	msg.SetHeader("To", req.Email)
	msg.SetHeader("Subject", fmt.Sprintf("Access request received: %s", req.Organization))

	msg.SetBody("text/plain", fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your government data access request for %s has been received and "+
			"is awaiting review. You will be contacted at this address once a "+
			"decision is made.\n\n"+
			"Requested data categories: %s\n",
		req.ContactPerson, req.Organization, strings.Join(req.DataTypes, ", ")))

	dialer := gomail.NewDialer(smtpServer, smtpPort, smtpUser, smtpPass)

	if viper.GetString("smtp.security") == "ssl" {
		dialer.SSL = true
	} else {
		// STARTTLS fallback
		dialer.TLSConfig = &tls.Config{ServerName: smtpServer}
	}

	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send receipt: %w", err)
	}

	return nil
}
