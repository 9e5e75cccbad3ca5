package email

import (
	"fmt"
	"time"

	domemail "github.com/kailas-cloud/mailrag/internal/domain/email"
)

// emailDTO is one line of the JSON-lines mailbox export.
type emailDTO struct {
	ID           int64  `json:"id"`
	Subject      string `json:"subject"`
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient"`
	Body         string `json:"body"`
	ReceivedDate string `json:"received_date,omitempty"`
	Category     string `json:"category,omitempty"`
}

func (d *emailDTO) toDomain() (domemail.Email, error) {
	var received time.Time
	if d.ReceivedDate != "" {
		t, err := time.Parse(time.RFC3339, d.ReceivedDate)
		if err != nil {
			return domemail.Email{}, fmt.Errorf("email %d: parse received_date: %w", d.ID, err)
		}
		received = t
	}
	return domemail.New(d.ID, d.Subject, d.Sender, d.Recipient, d.Body, received, domemail.Category(d.Category))
}

func fromDomain(e *domemail.Email) emailDTO {
	d := emailDTO{
		ID:        e.ID(),
		Subject:   e.Subject(),
		Sender:    e.Sender(),
		Recipient: e.Recipient(),
		Body:      e.Body(),
		Category:  string(e.Category()),
	}
	if !e.ReceivedDate().IsZero() {
		d.ReceivedDate = e.ReceivedDate().UTC().Format(time.RFC3339)
	}
	return d
}
