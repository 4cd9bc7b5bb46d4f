package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/spf13/viper"
)

type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer delivers plain-text mail through the configured SMTP relay.
type Mailer struct {
	addr string
	from string
	auth smtp.Auth
	send SendFunc
}

func NewMailer(cfg *viper.Viper) Mailer {
	user := cfg.GetString("email.user")
	from := cfg.GetString("email.from")
	if from == "" {
		from = user
	}

	var auth smtp.Auth
	if user != "" {
		auth = smtp.CRAMMD5Auth(user, cfg.GetString("email.password"))
	}

	return Mailer{
		addr: fmt.Sprintf("%s:%d", cfg.GetString("email.host"), cfg.GetInt("email.port")),
		from: from,
		auth: auth,
		send: smtp.SendMail,
	}
}

// WithSendFunc replaces the SMTP transport, mostly for tests.
func (out Mailer) WithSendFunc(send SendFunc) Mailer {
	out.send = send
	return out
}

func (out Mailer) Send(to []string, subject string, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("send %q: no recipients", subject)
	}

	message := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		out.from,
		strings.Join(to, ","),
		subject,
		body,
	))

	if err := out.send(out.addr, out.auth, out.from, to, message); err != nil {
		return fmt.Errorf("send %q: %w", subject, err)
	}

	return nil
}
