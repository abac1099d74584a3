// Package translate rewrites command parameters between the names users see
// and the identifiers that are stable across the network.
package translate

// Rule describes how one parameter position is translated.
type Rule int

const (
    // Text parameters pass through unchanged.
    Text Rule = iota
    // Nick parameters hold a nickname (display form) or a user UUID (stable form).
    Nick
    // Custom parameters are translated by the command's own ParameterEncoder.
    Custom
)

func (r Rule) String() string {
    switch r {
    case Text:
        return "text"
    case Nick:
        return "nick"
    case Custom:
        return "custom"
    default:
        return "unknown"
    }
}

// Direction selects which way Translate rewrites.
type Direction int

const (
    // ToStable converts display names to network identifiers (outbound).
    ToStable Direction = iota
    // ToDisplay converts network identifiers back to display names.
    ToDisplay
)

// Resolver maps between nicknames and user UUIDs.
type Resolver interface {
    UUIDForNick(nick string) (string, bool)
    NickForUUID(uuid string) (string, bool)
}

// ParameterEncoder is implemented by commands with Custom positions.
type ParameterEncoder interface {
    EncodeParameter(param string, index int, dir Direction) string
}

// Translate returns a new parameter list with every position rewritten per
// rules. Positions beyond len(rules) are Text. Tokens that cannot be resolved
// are copied unchanged, so Translate never fails.
func Translate(params []string, rules []Rule, dir Direction, res Resolver, enc ParameterEncoder) []string {
    out := make([]string, len(params))
    for i, p := range params {
        rule := Text
        if i < len(rules) { rule = rules[i] }
        out[i] = translateOne(p, i, rule, dir, res, enc)
    }
    return out
}

func translateOne(p string, i int, rule Rule, dir Direction, res Resolver, enc ParameterEncoder) string {
    switch rule {
    case Nick:
        if res == nil || p == "" { return p }
        var (
            v  string
            ok bool
        )
        if dir == ToStable {
            v, ok = res.UUIDForNick(p)
        } else {
            v, ok = res.NickForUUID(p)
        }
        if ok { return v }
    case Custom:
        if enc != nil { return enc.EncodeParameter(p, i, dir) }
    }
    return p
}
