package services

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

type EmailSender interface {
	SendVerificationEmail(to, name, code string) error
}

type emailService struct {
	host string
	port int
	user string
	pass string
	from string
}

func NewEmailService(host string, port int, user, pass, from string) EmailSender {
	return &emailService{host: host, port: port, user: user, pass: pass, from: from}
}

func (s *emailService) SendVerificationEmail(to, name, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Your verification code")
	m.SetBody("text/plain", fmt.Sprintf(
		"Hello %s,\n\nYour verification code is: %s\nIt expires in 10 minutes.\n\nIf you did not request this, ignore this email.\n",
		name, code,
	))

	d := gomail.NewDialer(s.host, s.port, s.user, s.pass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}
