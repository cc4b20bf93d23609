// Package analyze - Findings reported by the lock usage checks.
//
// A finding carries its file position (file:line:column) and a suggestion.
//
// Example output:
//
//	bus.go:42:2: b.mu.Lock() has no deferred b.mu.Unlock(); a panic before the unlock leaves it held
//
//	Suggestion: Follow the lock with defer b.mu.Unlock(), or use g, err := lock.Scope(&b.mu); defer g.Release()
package analyze

import (
	"fmt"
	"go/token"
)

// Kind classifies a finding.
type Kind string

// Kinds of findings.
const (
	// KindUnreleased is a Lock/RLock with no release at all in the function.
	KindUnreleased Kind = "unreleased"
	// KindNoDefer is a Lock/RLock released only on the straight-line path.
	KindNoDefer Kind = "no-defer"
	// KindGuardNotDeferred is a lock.Scope guard never released by defer.
	KindGuardNotDeferred Kind = "guard-not-deferred"
	// KindGuardDiscarded is a lock.Scope guard assigned to the blank identifier.
	KindGuardDiscarded Kind = "guard-discarded"
)

// Finding is one suspicious acquisition.
//
// Immutable after creation, safe for concurrent use.
type Finding struct {
	File       string `json:"file"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error implements the error interface.
//
// Format: file:line:column: message, followed by the suggestion on its own
// paragraph when there is one.
func (f *Finding) Error() string {
	result := fmt.Sprintf("%s:%d:%d: %s", f.File, f.Line, f.Column, f.Message)
	if f.Suggestion != "" {
		result += fmt.Sprintf("\n\nSuggestion: %s", f.Suggestion)
	}
	return result
}

// Position returns "file:line:column".
func (f *Finding) Position() string {
	return fmt.Sprintf("%s:%d:%d", f.File, f.Line, f.Column)
}

// NewFinding creates a finding positioned at pos.
func NewFinding(fset *token.FileSet, pos token.Pos, kind Kind, msg, suggestion string) *Finding {
	position := fset.Position(pos)
	return &Finding{
		File:       position.Filename,
		Line:       position.Line,
		Column:     position.Column,
		Kind:       kind,
		Message:    msg,
		Suggestion: suggestion,
	}
}
