package wire

import (
    "errors"
    "reflect"
    "testing"
)

func TestLineString(t *testing.T) {
    cases := []struct{
        l    Line
        want string
    }{
        {Line{Command: "ping"}, "PING"},
        {Line{Source: "0AA", Command: "SERVER", Params: []string{"hub.example.net", "0BB", "Hub server"}}, ":0AA SERVER hub.example.net 0BB :Hub server"},
        {Line{Source: "0AAAAAAAB", Command: "PRIVMSG", Params: []string{"#chat", "hi"}}, ":0AAAAAAAB PRIVMSG #chat hi"},
        {Line{Source: "0AA", Command: "SQUIT", Params: []string{"0CC", ""}}, ":0AA SQUIT 0CC :"},
        {Line{Source: "0AA", Command: "X", Params: []string{":smile"}}, ":0AA X ::smile"},
    }
    for _, c := range cases {
        if got := c.l.String(); got != c.want { t.Fatalf("got %q want %q", got, c.want) }
    }
}

func TestParse(t *testing.T) {
    l, err := Parse(":0AA privmsg  #chat :hello there\r\n")
    if err != nil { t.Fatalf("parse: %v", err) }
    want := Line{Source: "0AA", Command: "PRIVMSG", Params: []string{"#chat", "hello there"}}
    if !reflect.DeepEqual(l, want) { t.Fatalf("got %+v want %+v", l, want) }

    l, err = Parse("PING")
    if err != nil || l.Command != "PING" || l.Source != "" || len(l.Params) != 0 { t.Fatalf("got %+v %v", l, err) }

    for _, bad := range []string{"", "   ", ":0AA", ":0AA  ", ":only :trailing"} {
        if _, err := Parse(bad); err == nil { t.Fatalf("expected error for %q", bad) }
    }
    if _, err := Parse(""); !errors.Is(err, ErrEmptyLine) { t.Fatalf("expected ErrEmptyLine, got %v", err) }
}

func TestEncapRoundTrip(t *testing.T) {
    inner := Line{Source: "0AAAAAAAB", Command: "metadata", Params: []string{"0AAAAAAAB", "away", "gone fishing"}}
    enc := Encap("0AAAAAAAB", Wildcard, inner)
    if enc.Command != EncapCommand { t.Fatalf("command %q", enc.Command) }

    decoded, err := Parse(enc.String())
    if err != nil { t.Fatalf("parse: %v", err) }
    target, got, ok := Unwrap(decoded)
    if !ok { t.Fatalf("unwrap failed for %q", enc.String()) }
    if target != Wildcard { t.Fatalf("target %q", target) }
    if got.Command != "METADATA" { t.Fatalf("inner command %q", got.Command) }
    if !reflect.DeepEqual(got.Params, inner.Params) { t.Fatalf("params %v want %v", got.Params, inner.Params) }
}

func TestUnwrapRejects(t *testing.T) {
    if _, _, ok := Unwrap(Line{Command: "PRIVMSG", Params: []string{"a", "b"}}); ok { t.Fatalf("non-ENCAP accepted") }
    if _, _, ok := Unwrap(Line{Command: "ENCAP", Params: []string{"*"}}); ok { t.Fatalf("short ENCAP accepted") }
}

func TestLineValidate(t *testing.T) {
    cases := []struct{
        name   string
        params []string
        ok     bool
    }{
        {"plain", []string{"a", "c"}, true},
        {"trailing with spaces", []string{"a", "gone fishing"}, true},
        {"empty trailing", []string{"a", ""}, true},
        {"colon trailing", []string{"a", ":x"}, true},
        {"middle with space", []string{"a b", "c"}, false},
        {"empty middle", []string{"", "c"}, false},
        {"colon middle", []string{":x", "c"}, false},
        {"line break", []string{"x\r\nSQUIT 0BB", "c"}, false},
        {"line break in trailing", []string{"a", "x\nSQUIT 0BB"}, false},
        {"nul", []string{"a", "x\x00"}, false},
    }
    for _, c := range cases {
        inner := Line{Source: "0AA", Command: "METADATA", Params: c.params}
        enc := Encap("0AA", Wildcard, inner)
        err := enc.Validate()
        if !c.ok {
            if !errors.Is(err, ErrUnencodable) { t.Fatalf("%s: expected ErrUnencodable, got %v", c.name, err) }
            continue
        }
        if err != nil { t.Fatalf("%s: %v", c.name, err) }
        decoded, err := Parse(enc.String())
        if err != nil { t.Fatalf("%s: parse: %v", c.name, err) }
        _, got, ok := Unwrap(decoded)
        if !ok || !reflect.DeepEqual(got.Params, c.params) { t.Fatalf("%s: %q decoded to %q", c.name, enc.String(), got.Params) }
    }
    if err := (Line{Source: "0A A", Command: "X"}).Validate(); !errors.Is(err, ErrUnencodable) { t.Fatalf("bad source accepted: %v", err) }
    if err := (Line{Source: "0AA"}).Validate(); !errors.Is(err, ErrMissingCommand) { t.Fatalf("missing command accepted: %v", err) }
}
