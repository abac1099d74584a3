// Package casemap implements the rfc1459 case mapping used for server names,
// nicknames and channel names on the network.
package casemap

import "strings"

// Fold returns the canonical lower-case form of s. In addition to ASCII
// letters, the characters []\~ fold to {}|^ respectively.
func Fold(s string) string {
    var b strings.Builder
    b.Grow(len(s))
    for i := 0; i < len(s); i++ {
        b.WriteByte(foldByte(s[i]))
    }
    return b.String()
}

// Equal reports whether a and b are equal under the network case mapping.
func Equal(a, b string) bool {
    if len(a) != len(b) { return false }
    for i := 0; i < len(a); i++ {
        if foldByte(a[i]) != foldByte(b[i]) { return false }
    }
    return true
}

func foldByte(c byte) byte {
    switch {
    case c >= 'A' && c <= 'Z':
        return c + ('a' - 'A')
    case c == '[':
        return '{'
    case c == ']':
        return '}'
    case c == '\\':
        return '|'
    case c == '~':
        return '^'
    }
    return c
}
