// Package errors formats compiler errors with source context and carries a
// structured, phase-categorized error code for each one (spec.md §7).
package errors

import (
	"fmt"
	"strings"

	"github.com/tsilgen/tsilc/internal/ast"
)

// CompilerError is a single compile-time failure: a source position, a
// human-readable message, and a structured Code from the Registry in
// codes.go.
type CompilerError struct {
	Code    string
	Message string
	Source  string // full source text, for the caret-annotated Format
	File    string
	Pos     ast.Pos
}

// New creates a CompilerError at pos with message built from format+args.
func New(code string, pos ast.Pos, format string, args ...interface{}) *CompilerError {
	return &CompilerError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
		File:    pos.File,
	}
}

// WithSource attaches the full source text so Format can print a caret.
func (e *CompilerError) WithSource(src string) *CompilerError {
	e.Source = src
	return e
}

// Error implements the error interface.
func (e *CompilerError) Error() string {
	return e.Format(false)
}

// Format renders the error with a source-line snippet and caret, optionally
// with ANSI color, matching the teacher's CompilerError.Format.
func (e *CompilerError) Format(color bool) string {
	var sb strings.Builder

	if e.File != "" {
		sb.WriteString(fmt.Sprintf("%s: %s:%d:%d\n", e.Code, e.File, e.Pos.Line, e.Pos.Column))
	} else {
		sb.WriteString(fmt.Sprintf("%s: line %d:%d\n", e.Code, e.Pos.Line, e.Pos.Column))
	}

	if line := e.sourceLine(e.Pos.Line); line != "" {
		prefix := fmt.Sprintf("%4d | ", e.Pos.Line)
		sb.WriteString(prefix)
		sb.WriteString(line)
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat(" ", len(prefix)+max0(e.Pos.Column-1)))
		if color {
			sb.WriteString("\033[1;31m")
		}
		sb.WriteString("^")
		if color {
			sb.WriteString("\033[0m")
		}
		sb.WriteString("\n")
	}

	if color {
		sb.WriteString("\033[1m")
	}
	sb.WriteString(e.Message)
	if color {
		sb.WriteString("\033[0m")
	}

	return sb.String()
}

func (e *CompilerError) sourceLine(n int) string {
	if e.Source == "" {
		return ""
	}
	lines := strings.Split(e.Source, "\n")
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
