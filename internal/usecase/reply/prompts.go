package reply

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/mailrag/internal/domain/email"
	"github.com/kailas-cloud/mailrag/internal/domain/record"
)

const groundedInstruction = "You are an AI assistant helping to draft email replies. " +
	"Use the following context from similar emails to craft a response to the current email."

const groundedClosing = "Based on the context and the current email, draft a professional and helpful reply " +
	"that continues any existing conversation threads appropriately. The reply should be concise, " +
	"address the specific points in the email, and match the tone of previous communications."

const fallbackInstruction = "Draft a professional and helpful reply to the following email:"

// groundedPrompt builds the generation prompt for the target email and its retrieved neighbours.
func groundedPrompt(e *email.Email, similar []record.Similarity) string {
	var b strings.Builder
	b.WriteString(groundedInstruction)
	b.WriteString("\n\nCurrent Email:\n")
	writeEmail(&b, e)
	b.WriteString("\nSimilar Email Context:\n")
	b.WriteString(similarContext(similar))
	b.WriteString("\n")
	b.WriteString(groundedClosing)
	b.WriteString("\n\nReply:\n")
	return b.String()
}

// fallbackPrompt builds the minimal prompt used when there is no context to ground on.
func fallbackPrompt(e *email.Email) string {
	var b strings.Builder
	b.WriteString(fallbackInstruction)
	b.WriteString("\n\n")
	writeEmail(&b, e)
	b.WriteString("\nReply:\n")
	return b.String()
}

func writeEmail(b *strings.Builder, e *email.Email) {
	fmt.Fprintf(b, "From: %s\nSubject: %s\nBody: %s\n", e.Sender(), e.Subject(), e.Body())
}

// similarContext renders neighbours in retrieval order, numbered from 1.
// Stored texts carry "Subject:"/"Body:" labels from indexing; they are stripped
// so the block reads as one labelled email.
func similarContext(similar []record.Similarity) string {
	var b strings.Builder
	for i := range similar {
		s := &similar[i]
		subject := s.Metadata()[email.MetaSubject]
		if subject == "" {
			subject = "N/A"
		}
		body := strings.ReplaceAll(s.Text(), "Subject:", "")
		body = strings.ReplaceAll(body, "Body:", "")

		fmt.Fprintf(&b, "--- Similar Email %d (Similarity: %.2f) ---\n", i+1, s.Score())
		fmt.Fprintf(&b, "Subject: %s\n", subject)
		fmt.Fprintf(&b, "Body: %s\n\n", body)
	}
	return b.String()
}
