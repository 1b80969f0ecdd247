package report

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net/smtp"
	"regexp"
	"strings"
)

// Emailer delivers HTML mail over implicit TLS (SMTPS).
type Emailer struct {
	Host     string
	Port     int
	Password string
}

func NewEmailer(host string, port int, password string) *Emailer {
	return &Emailer{Host: host, Port: port, Password: password}
}

var angleAddrRe = regexp.MustCompile(`<(.*)>`)

// parseUsername extracts the bare address from a "Name <addr>" header value.
func parseUsername(emailAddress string) string {
	if m := angleAddrRe.FindStringSubmatch(emailAddress); m != nil {
		return m[1]
	}
	return emailAddress
}

func (e *Emailer) Send(sender string, recipients []string, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", e.Host, e.Port)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: e.Host})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, e.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	username := parseUsername(sender)
	if err := client.Auth(smtp.PlainAuth("", username, e.Password, e.Host)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(username); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, recipient := range recipients {
		if err := client.Rcpt(parseUsername(recipient)); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", recipient, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	message := buildMessage(sender, recipients, subject, htmlBody)
	if _, err := w.Write([]byte(message)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	return client.Quit()
}

func buildMessage(sender string, recipients []string, subject, htmlBody string) string {
	headers := []string{
		"From: " + sender,
		"To: " + strings.Join(recipients, ", "),
		// Emoji in the subject need RFC 2047 encoding.
		"Subject: " + mime.BEncoding.Encode("UTF-8", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody + "\r\n"
}
