// Package docgen generates business documents with an AI upstream and
// converts uploaded documents between text formats.
package docgen

import (
	"context"
	"fmt"
)

// Kind selects the document template.
type Kind string

const (
	KindInvoice      Kind = "invoice"
	KindProposal     Kind = "proposal"
	KindMeetingNotes Kind = "meeting-notes"
)

// GenerateRequest is a validated generation request. Text is the user's
// brief (trimmed, non-empty); Format is the requested output markup.
type GenerateRequest struct {
	Text   string
	Format string // "markdown" or "html"
}

// Document is a generated document.
type Document struct {
	Content string `json:"content"`
	Format  string `json:"format"`
	Service string `json:"service"`
}

// Generator produces a document of the given kind from a brief.
type Generator interface {
	Generate(ctx context.Context, kind Kind, req GenerateRequest) (*Document, error)
}

// prompt builds the instruction sent to the model.
func prompt(kind Kind, req GenerateRequest) (string, error) {
	format := req.Format
	if format == "" {
		format = "markdown"
	}
	switch kind {
	case KindInvoice:
		return fmt.Sprintf("Create a professional invoice in %s from the following details. "+
			"Include line items, totals and payment terms. Details:\n%s", format, req.Text), nil
	case KindProposal:
		return fmt.Sprintf("Write a concise business proposal in %s based on the following brief. "+
			"Use sections for scope, timeline and pricing. Brief:\n%s", format, req.Text), nil
	case KindMeetingNotes:
		return fmt.Sprintf("Turn the following raw meeting transcript into structured meeting notes in %s "+
			"with attendees, decisions and action items. Transcript:\n%s", format, req.Text), nil
	default:
		return "", fmt.Errorf("unknown document kind %q", kind)
	}
}
