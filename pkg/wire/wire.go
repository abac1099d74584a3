// Package wire encodes and decodes the command lines exchanged between peers.
//
//     :<source> <COMMAND> <p1> ... [:<trailing>]
package wire

import (
    "errors"
    "fmt"
    "strings"
)

// EncapCommand is the carrier for commands some peers may not understand.
const EncapCommand = "ENCAP"

// Wildcard as an ENCAP target means every server.
const Wildcard = "*"

var (
    ErrEmptyLine      = errors.New("wire: empty line")
    ErrMissingCommand = errors.New("wire: missing command")
    ErrUnencodable    = errors.New("wire: parameter cannot be encoded")
)

// Line is one decoded command line.
type Line struct {
    Source  string
    Command string
    Params  []string
}

// String encodes l. The last parameter is sent as a trailing parameter when
// it would otherwise be ambiguous. Lines that fail Validate do not decode to
// the same parameters.
func (l Line) String() string {
    var b strings.Builder
    if l.Source != "" {
        b.WriteByte(':')
        b.WriteString(l.Source)
        b.WriteByte(' ')
    }
    b.WriteString(strings.ToUpper(l.Command))
    for i, p := range l.Params {
        b.WriteByte(' ')
        if i == len(l.Params)-1 && needsTrailing(p) { b.WriteByte(':') }
        b.WriteString(p)
    }
    return b.String()
}

// Validate reports whether l survives String followed by Parse unchanged.
// Only the last parameter may be empty, contain spaces or start with a colon,
// and no part of the line may contain CR, LF or NUL.
func (l Line) Validate() error {
    if l.Command == "" || !isToken(l.Command) { return ErrMissingCommand }
    if l.Source != "" && !isToken(l.Source) { return fmt.Errorf("%w: source %q", ErrUnencodable, l.Source) }
    for i, p := range l.Params {
        if strings.ContainsAny(p, "\r\n\x00") { return fmt.Errorf("%w: parameter %d has a line break or NUL", ErrUnencodable, i) }
        if i < len(l.Params)-1 && needsTrailing(p) { return fmt.Errorf("%w: middle parameter %d is %q", ErrUnencodable, i, p) }
    }
    return nil
}

func isToken(s string) bool {
    return !strings.ContainsAny(s, " \r\n\x00") && !strings.HasPrefix(s, ":")
}

func needsTrailing(p string) bool {
    return p == "" || strings.ContainsRune(p, ' ') || strings.HasPrefix(p, ":")
}

// Parse decodes one line without its terminator.
func Parse(s string) (Line, error) {
    s = strings.TrimRight(s, "\r\n")
    s = strings.TrimLeft(s, " ")
    if s == "" { return Line{}, ErrEmptyLine }
    var l Line
    if s[0] == ':' {
        i := strings.IndexByte(s, ' ')
        if i < 0 { return Line{}, ErrMissingCommand }
        l.Source = s[1:i]
        s = strings.TrimLeft(s[i+1:], " ")
    }
    if s == "" { return Line{}, ErrMissingCommand }
    for s != "" {
        if s[0] == ':' {
            if l.Command == "" { return Line{}, ErrMissingCommand }
            l.Params = append(l.Params, s[1:])
            break
        }
        var tok string
        if i := strings.IndexByte(s, ' '); i >= 0 {
            tok, s = s[:i], strings.TrimLeft(s[i+1:], " ")
        } else {
            tok, s = s, ""
        }
        if l.Command == "" {
            l.Command = strings.ToUpper(tok)
        } else {
            l.Params = append(l.Params, tok)
        }
    }
    return l, nil
}

// Encap wraps inner in an ENCAP line addressed to target, or to every server
// when target is Wildcard. The inner source is not carried.
func Encap(source, target string, inner Line) Line {
    params := make([]string, 0, len(inner.Params)+2)
    params = append(params, target, strings.ToUpper(inner.Command))
    params = append(params, inner.Params...)
    return Line{Source: source, Command: EncapCommand, Params: params}
}

// Unwrap extracts the target and inner command from an ENCAP line. The inner
// line inherits the carrier's source.
func Unwrap(l Line) (target string, inner Line, ok bool) {
    if !strings.EqualFold(l.Command, EncapCommand) || len(l.Params) < 2 { return "", Line{}, false }
    inner = Line{Source: l.Source, Command: strings.ToUpper(l.Params[1]), Params: append([]string(nil), l.Params[2:]...)}
    return l.Params[0], inner, true
}
