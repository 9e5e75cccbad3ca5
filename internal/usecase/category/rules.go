// Package category assigns a category to emails that arrive without one.
// It is a keyword heuristic for filling metadata, not a classifier.
package category

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/mailrag/internal/domain/email"
)

type rule struct {
	category email.Category
	pattern  *regexp.Regexp
}

// Rules are checked in order; the first match wins.
var rules = []rule{
	{email.CategoryOutOfOffice, regexp.MustCompile(`(out\s*of\s*office|ooo|vacation|holiday|leave|away|not\s+available)`)},
	{email.CategoryMeetingBooked, regexp.MustCompile(`(meeting|appointment|schedule|calendar|meet|discuss|call|zoom|teams|google\s*meet)`)},
	{email.CategorySpam, regexp.MustCompile(`(unsubscribe|promotion|offer|deal|discount|sale|marketing|subscribe|newsletter)`)},
	{email.CategoryNotInterested, regexp.MustCompile(`(not\s+interested|no\s+thank|decline|sorry|won't|cannot|won't\s+be|no\s+interest)`)},
	{email.CategoryInterested, regexp.MustCompile(`(interest|inquiry|question|learn\s+more|tell\s+me|information|service|product)`)},
}

// Categorize returns the first matching category for text, or uncategorized.
// Matching is case-insensitive and substring based ("leave" matches "cleaved").
func Categorize(text string) email.Category {
	text = strings.ToLower(text)
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return r.category
		}
	}
	return email.CategoryUncategorized
}

// Fill returns e unchanged when it already has a category, otherwise a copy
// categorized from its subject and body.
func Fill(e *email.Email) email.Email {
	if e.Category() != email.CategoryUncategorized {
		return *e
	}
	return e.WithCategory(Categorize(e.Subject() + "\n" + e.Body()))
}
