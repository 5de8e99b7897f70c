// Package email sends transactional mail over SMTP.
package email

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"

	"github.com/irsalhamdi/e-commerce-media/config"
	mail "github.com/jordan-wright/email"
)

type Mailer struct {
	addr string
	from string
	auth smtp.Auth

	send func(e *mail.Email, addr string, auth smtp.Auth) error
}

func New(cfg config.Email) *Mailer {
	from := cfg.From
	if from == "" {
		from = cfg.Address
	}

	return &Mailer{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from: from,
		auth: smtp.PlainAuth("", cfg.Address, cfg.Password, cfg.Host),
		send: func(e *mail.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

type ReceiptItem struct {
	Title  string
	Format string
	Amount int
}

type Receipt struct {
	Name      string
	Email     string
	Reference string
	Currency  string
	Total     int
	Items     []ReceiptItem
}

var receiptTmpl = template.Must(template.New("receipt").Parse(`Hi {{if .Name}}{{.Name}}{{else}}there{{end}},

Thank you for your purchase. Your payment was confirmed.

Reference: {{.Reference}}
{{range .Items}}
  - {{.Title}} ({{.Format}}): {{if .Amount}}{{$.Currency}} {{.Amount}}{{else}}free{{end}}{{end}}

Total: {{if .Total}}{{.Currency}} {{.Total}}{{else}}free{{end}}

Your titles are waiting in your library.
`))

func (r Receipt) body() ([]byte, error) {
	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("rendering receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *Mailer) SendReceipt(r Receipt) error {
	if strings.TrimSpace(r.Email) == "" {
		return fmt.Errorf("receipt %s has no recipient", r.Reference)
	}

	body, err := r.body()
	if err != nil {
		return err
	}

	e := mail.NewEmail()
	e.From = m.from
	e.To = []string{r.Email}
	e.Subject = "Your purchase receipt"
	e.Text = body

	if err := m.send(e, m.addr, m.auth); err != nil {
		return fmt.Errorf("sending receipt %s to %s: %w", r.Reference, r.Email, err)
	}
	return nil
}
