package casemap

import "testing"

func TestFold(t *testing.T) {
    cases := []struct{
        in   string
        want string
    }{
        {"", ""},
        {"Hub.Example.NET", "hub.example.net"},
        {"Nick[Away]", "nick{away}"},
        {`a\b~c`, "a|b^c"},
        {"#Chat", "#chat"},
    }
    for _, c := range cases {
        if got := Fold(c.in); got != c.want {
            t.Fatalf("Fold(%q) = %q, want %q", c.in, got, c.want)
        }
    }
}

func TestEqual(t *testing.T) {
    if !Equal("Dan[1]", "dan{1}") { t.Fatalf("expected rfc1459 equality") }
    if Equal("dan", "dann") { t.Fatalf("different lengths must not be equal") }
    if Equal("a.b", "a-b") { t.Fatalf("unexpected equality") }
}
