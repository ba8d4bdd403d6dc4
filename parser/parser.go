// Package parser turns document files into plain text for extraction.
package parser

import (
	"context"
	"errors"
)

// ErrUnsupportedFormat is returned by the registry for unknown extensions.
var ErrUnsupportedFormat = errors.New("parser: unsupported document format")

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Sections []Section // Ordered sections extracted from the document
	Method   string    // "native"
	Metadata map[string]string
}

// Section represents a logical unit of a parsed document: a page, a
// paragraph group, or a sheet.
type Section struct {
	Heading    string
	Content    string
	PageNumber int
	Metadata   map[string]string
}

// Parser can parse a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
