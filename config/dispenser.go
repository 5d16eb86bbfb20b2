package config

import "fmt"

// Dispenser walks a token stream one call at a time, the way the
// parser consumes it: advance to the directive name, pull its
// arguments on the same line, then descend into (and back out of) a
// "{ ... }" block.
type Dispenser struct {
	tokens []Token
	cursor int
}

// NewDispenser wraps tokens for parsing, starting before the first one.
func NewDispenser(tokens []Token) *Dispenser {
	return &Dispenser{tokens: tokens, cursor: -1}
}

// Next advances to the next token, reporting whether one exists.
func (d *Dispenser) Next() bool {
	if d.cursor >= len(d.tokens)-1 {
		d.cursor = len(d.tokens)
		return false
	}
	d.cursor++
	return true
}

// NextArg advances to the next token only if it is on the same source
// line as the current one (i.e. it's an argument to the current
// directive, not the start of a new line).
func (d *Dispenser) NextArg() bool {
	if d.cursor < 0 || d.cursor >= len(d.tokens)-1 {
		return false
	}
	if d.tokens[d.cursor+1].Line != d.tokens[d.cursor].Line {
		return false
	}
	d.cursor++
	return true
}

// Val returns the text of the current token, or "" before the first
// Next call or past the end of the stream.
func (d *Dispenser) Val() string {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return ""
	}
	return d.tokens[d.cursor].Text
}

// Line returns the source line of the current token.
func (d *Dispenser) Line() int {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return 0
	}
	return d.tokens[d.cursor].Line
}

// File returns the source file of the current token.
func (d *Dispenser) File() string {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return ""
	}
	return d.tokens[d.cursor].File
}

// RemainingArgs collects every token through the end of the current
// line as arguments, without consuming the line-ending itself beyond
// that point (the caller should not call NextArg again afterward).
func (d *Dispenser) RemainingArgs() []string {
	var args []string
	for d.NextArg() {
		args = append(args, d.Val())
	}
	return args
}

// NextBlock advances past an opening "{" (which must be the next
// token) and reports true if the block has at least one token before
// its closing "}"; the parser then calls Next repeatedly, checking
// Val() against "}", to walk the block body.
func (d *Dispenser) NextBlock() (bool, error) {
	if !d.NextArg() {
		return false, nil
	}
	if d.Val() != "{" {
		return false, d.Errf("expected '{' to open block, got %q", d.Val())
	}
	if !d.Next() {
		return false, d.Errf("unexpected EOF, expected block body or '}'")
	}
	return d.Val() != "}", nil
}

// ArgErr reports a missing-argument error at the current token.
func (d *Dispenser) ArgErr() error {
	return d.Errf("directive %q expects an argument", d.Val())
}

// Errf formats an error tagged with the current token's file:line.
func (d *Dispenser) Errf(format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", d.File(), d.Line(), fmt.Sprintf(format, args...))
}
