package translate

import (
    "strings"
    "testing"
)

type mapResolver map[string]string // nick -> uuid

func (m mapResolver) UUIDForNick(nick string) (string, bool) { v, ok := m[strings.ToLower(nick)]; return v, ok }
func (m mapResolver) NickForUUID(uuid string) (string, bool) {
    for n, u := range m { if u == uuid { return n, true } }
    return "", false
}

type upper struct{}

func (upper) EncodeParameter(p string, i int, dir Direction) string {
    if dir == ToStable { return strings.ToUpper(p) }
    return strings.ToLower(p)
}

func TestTranslate(t *testing.T) {
    res := mapResolver{"alice": "0AAAAAAAB", "bob": "0BBAAAAAC"}
    cases := []struct{
        name   string
        params []string
        rules  []Rule
        dir    Direction
        enc    ParameterEncoder
        want   []string
    }{
        {"nick to uuid", []string{"Alice", "hello"}, []Rule{Nick, Text}, ToStable, nil, []string{"0AAAAAAAB", "hello"}},
        {"uuid to nick", []string{"0BBAAAAAC", "hi"}, []Rule{Nick}, ToDisplay, nil, []string{"bob", "hi"}},
        {"unknown passes", []string{"carol"}, []Rule{Nick}, ToStable, nil, []string{"carol"}},
        {"beyond rules is text", []string{"#chan", "alice"}, []Rule{Text}, ToStable, nil, []string{"#chan", "alice"}},
        {"custom", []string{"x", "abc"}, []Rule{Text, Custom}, ToStable, upper{}, []string{"x", "ABC"}},
        {"custom without encoder", []string{"abc"}, []Rule{Custom}, ToStable, nil, []string{"abc"}},
        {"empty", nil, []Rule{Nick}, ToStable, nil, []string{}},
    }
    for _, c := range cases {
        got := Translate(c.params, c.rules, c.dir, res, c.enc)
        if len(got) != len(c.want) { t.Fatalf("%s: got %v want %v", c.name, got, c.want) }
        for i := range got {
            if got[i] != c.want[i] { t.Fatalf("%s: item %d got %q want %q", c.name, i, got[i], c.want[i]) }
        }
    }
}

func TestTranslate_DoesNotMutateInput(t *testing.T) {
    in := []string{"alice"}
    _ = Translate(in, []Rule{Nick}, ToStable, mapResolver{"alice": "0AAAAAAAB"}, nil)
    if in[0] != "alice" { t.Fatalf("input mutated: %v", in) }
}

func TestTranslate_NilResolver(t *testing.T) {
    got := Translate([]string{"alice"}, []Rule{Nick}, ToStable, nil, nil)
    if got[0] != "alice" { t.Fatalf("got %v", got) }
}
