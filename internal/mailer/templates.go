package mailer

import (
	"context"
	"fmt"
	"strings"
	"text/template"
)

// OrderLine is one purchased product in a confirmation email.
type OrderLine struct {
	Name     string
	Quantity int
	Price    string
}

// OrderConfirmationData feeds the order confirmation template.
type OrderConfirmationData struct {
	StoreName  string
	OrderID    string
	Lines      []OrderLine
	Total      string
	LibraryURL string
}

var orderConfirmationTmpl = template.Must(template.New("order_confirmation").Parse(
	`Hi,

thank you for your order at {{.StoreName}}!

Order reference: {{.OrderID}}
{{range .Lines}}
  {{.Quantity}} x {{.Name}} ({{.Price}}){{end}}

Total: {{.Total}}

Your PDFs are ready in your library:
{{.LibraryURL}}

Downloads stay available for 30 days after purchase, up to 5 downloads
per file.

Happy printing,
{{.StoreName}}
`))

// Mailer renders templated storefront emails and hands them to a Sender.
type Mailer struct {
	sender    Sender
	storeName string
}

// New builds a mailer.
func New(sender Sender, storeName string) *Mailer {
	storeName = strings.TrimSpace(storeName)
	if storeName == "" {
		storeName = "LittleFidan"
	}
	return &Mailer{sender: sender, storeName: storeName}
}

// SendOrderConfirmation emails the buyer after a successful payment.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, to string, data OrderConfirmationData) error {
	if m == nil || m.sender == nil {
		return nil
	}
	data.StoreName = m.storeName
	var buf strings.Builder
	if err := orderConfirmationTmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render order confirmation: %w", err)
	}
	subject := fmt.Sprintf("%s: your order %s", m.storeName, data.OrderID)
	return m.sender.Send(ctx, to, subject, buf.String())
}
