package email

import (
	"fmt"
	"strconv"
	"time"
)

// Category is the classification assigned to an email by the external classifier.
type Category string

// Known categories.
const (
	CategoryInterested    Category = "interested"
	CategoryMeetingBooked Category = "meeting_booked"
	CategoryNotInterested Category = "not_interested"
	CategorySpam          Category = "spam"
	CategoryOutOfOffice   Category = "out_of_office"
	CategoryUncategorized Category = "uncategorized"
)

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryInterested, CategoryMeetingBooked, CategoryNotInterested,
		CategorySpam, CategoryOutOfOffice, CategoryUncategorized:
		return true
	}
	return false
}

// Metadata keys written alongside every indexed email.
const (
	MetaEmailID      = "email_id"
	MetaSender       = "sender"
	MetaRecipient    = "recipient"
	MetaSubject      = "subject"
	MetaReceivedDate = "received_date"
	MetaCategory     = "category"
)

// Email is a read-only view of a stored email.
type Email struct {
	id           int64
	subject      string
	sender       string
	recipient    string
	body         string
	receivedDate time.Time
	category     Category
}

// New validates and creates an Email. An empty or unknown category becomes uncategorized.
// Subject and body may both be empty; such an email still indexes as its canonical text.
func New(
	id int64, subject, sender, recipient, body string,
	receivedDate time.Time, category Category,
) (Email, error) {
	if id <= 0 {
		return Email{}, fmt.Errorf("email id must be positive, got %d", id)
	}
	if !category.IsValid() {
		category = CategoryUncategorized
	}
	return Email{
		id: id, subject: subject, sender: sender, recipient: recipient,
		body: body, receivedDate: receivedDate, category: category,
	}, nil
}

// ID returns the email identifier.
func (e *Email) ID() int64 { return e.id }

// Subject returns the subject line.
func (e *Email) Subject() string { return e.subject }

// Sender returns the sender address.
func (e *Email) Sender() string { return e.sender }

// Recipient returns the recipient address.
func (e *Email) Recipient() string { return e.recipient }

// Body returns the plain-text body.
func (e *Email) Body() string { return e.body }

// ReceivedDate returns when the email was received.
func (e *Email) ReceivedDate() time.Time { return e.receivedDate }

// Category returns the assigned category.
func (e *Email) Category() Category { return e.category }

// WithCategory returns a copy with the given category.
func (e *Email) WithCategory(c Category) Email {
	cp := *e
	if c.IsValid() {
		cp.category = c
	}
	return cp
}

// IndexText is the canonical text embedded for an email, also used as the retrieval query.
func (e *Email) IndexText() string {
	return "Subject: " + e.subject + "\n\nBody: " + e.body
}

// Metadata is the enrichment bundle stored next to the email's vector.
func (e *Email) Metadata() map[string]string {
	received := ""
	if !e.receivedDate.IsZero() {
		received = e.receivedDate.UTC().Format(time.RFC3339)
	}
	return map[string]string{
		MetaEmailID:      strconv.FormatInt(e.id, 10),
		MetaSender:       e.sender,
		MetaRecipient:    e.recipient,
		MetaSubject:      e.subject,
		MetaReceivedDate: received,
		MetaCategory:     string(e.category),
	}
}
