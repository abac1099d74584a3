package discovery

import "testing"

func TestParseTarget(t *testing.T) {
    cases := []struct{
        in   string
        want Target
        ok   bool
    }{
        {"", Target{}, false},
        {"10.0.0.2:6667", Target{Addr: "10.0.0.2:6667"}, true},
        {" hub.example.net@10.0.0.2:6667 ", Target{Name: "hub.example.net", Addr: "10.0.0.2:6667"}, true},
        {"hub@", Target{}, false},
    }
    for _, c := range cases {
        got, ok := ParseTarget(c.in)
        if ok != c.ok || got != c.want { t.Fatalf("ParseTarget(%q) = %+v %v", c.in, got, ok) }
    }
}

func TestParseList(t *testing.T) {
    got := ParseList(" b:2 , a@a:1,, b:2 ,")
    if len(got) != 2 || got[0].Addr != "b:2" || got[1].Name != "a" { t.Fatalf("got %+v", got) }
    if s := Sorted(got); s[0].Addr != "a:1" { t.Fatalf("sorted %+v", s) }
    if got[0].String() != "b:2" || got[1].String() != "a@a:1" { t.Fatalf("String() %v", got) }
}
