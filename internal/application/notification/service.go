package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/infrastructure/smtp"
)

var otpTemplate = template.Must(template.New("otp").Parse(`<p>Hello {{.Username}},</p>
<p>Your {{.AppName}} verification code is:</p>
<h2 style="letter-spacing:4px">{{.Code}}</h2>
<p>The code expires in {{.Minutes}} minutes. If you did not create an account, ignore this email.</p>`))

type Service interface {
	SendOTP(ctx context.Context, to, username, code string, ttl time.Duration) error
}

type service struct {
	mailer  smtp.Mailer
	appName string
}

func NewService(mailer smtp.Mailer, appName string) Service {
	return &service{mailer: mailer, appName: appName}
}

// SendOTP emails a verification code. Any delivery failure is reported as
// domain.ErrNotification.
func (s *service) SendOTP(ctx context.Context, to, username, code string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send otp: %v: %w", err, domain.ErrNotification)
	}
	var body bytes.Buffer
	err := otpTemplate.Execute(&body, struct {
		Username, AppName, Code string
		Minutes                 int
	}{username, s.appName, code, int(ttl / time.Minute)})
	if err != nil {
		return fmt.Errorf("render otp email: %v: %w", err, domain.ErrNotification)
	}
	subject := fmt.Sprintf("%s verification code", s.appName)
	if err := s.mailer.SendEmail(to, subject, body.String()); err != nil {
		return fmt.Errorf("send otp: %v: %w", err, domain.ErrNotification)
	}
	return nil
}
