package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"loan-intake-be/internal/entity"
)

type IEmailService interface {
	SendOutcome(toEmail string, outcome *entity.FinalOutcome) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
}

func NewEmailService(host string, port int, username, password, senderName string) IEmailService {
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		senderEmail: username,
		senderName:  senderName,
	}
}

// SendOutcome mails the terminal decision to the applicant once a session
// completes. This is the outcome-consuming collaborator hook; failures are
// reported but never affect session state.
func (s *emailService) SendOutcome(toEmail string, outcome *entity.FinalOutcome) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.senderEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", fmt.Sprintf("Your loan application: %s", outcome.Decision))

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>%s - Application Decision</h2>
			<p>Decision: <strong>%s</strong></p>
			<p>%s</p>
			<p>Overall score: %.1f</p>
		</div>
	`, s.senderName, outcome.Decision, outcome.Reason, outcome.FinalScore)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send outcome mail: %w", err)
	}
	return nil
}
