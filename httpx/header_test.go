package httpx

import "testing"

func TestHeader_GroupsByFirstCasing(t *testing.T) {
	h := NewHeader()
	h.Add("x-foo", "a")
	h.Add("X-Foo", "b")
	h.Add("Other", "c")
	if got := h.Get("X-FOO"); got != "a" {
		t.Fatalf("Get = %q, want %q", got, "a")
	}
	if got := h.Values("X-FOO"); len(got) != 2 || got[1] != "b" {
		t.Fatalf("Values = %v", got)
	}
	if names := h.Names(); len(names) != 2 || names[0] != "x-foo" || names[1] != "Other" {
		t.Fatalf("Names = %v", names)
	}
}

func TestHeader_ReplaceKeepsPosition(t *testing.T) {
	h := NewHeader()
	h.Add("A", "1")
	h.Add("B", "2")
	h.Add("A", "3")
	h.AddHeader("a", "4", false)
	if got := h.String(); got != "A: 4\r\nB: 2" {
		t.Fatalf("String = %q", got)
	}
}

func TestHeader_DelThenAddMovesToEnd(t *testing.T) {
	h := NewHeader()
	h.Add("A", "1")
	h.Add("B", "2")
	if !h.Del("a") {
		t.Fatal("Del reported missing header")
	}
	if h.Has("A") || h.Get("A") != "" {
		t.Fatal("A still present after Del")
	}
	h.Add("A", "5")
	if got := h.String(); got != "B: 2\r\nA: 5" {
		t.Fatalf("String = %q", got)
	}
	if h.Del("missing") {
		t.Fatal("Del of absent header returned true")
	}
}

func TestHeader_EscapedRoundTrip(t *testing.T) {
	h := NewHeader()
	h.Add("X-Multi", "one")
	h.Add("X-Path", `C:\dir`)
	h.Add("X-Multi", "line1\nline2")
	h.Add("Empty", "")
	s := h.String()
	want := "X-Multi: one\r\nX-Multi: line1\\nline2\r\nX-Path: C:\\\\dir\r\nEmpty: "
	if s != want {
		t.Fatalf("String = %q\nwant %q", s, want)
	}
	back, err := ParseHeader(s)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if back.String() != s {
		t.Fatalf("round trip = %q", back.String())
	}
	if got := back.Values("x-multi"); len(got) != 2 || got[1] != "line1\nline2" {
		t.Fatalf("Values = %q", got)
	}
	if back.Get("X-Path") != `C:\dir` {
		t.Fatalf("X-Path = %q", back.Get("X-Path"))
	}
}

func TestHeader_ParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"no-colon", ": v", "A: bad\\q"} {
		if _, err := ParseHeader(in); err == nil {
			t.Fatalf("ParseHeader(%q) succeeded", in)
		}
	}
}

func TestHeader_CloneIsIndependent(t *testing.T) {
	h := NewHeader()
	h.Add("A", "1")
	c := h.Clone()
	c.Add("A", "2")
	c.Set("B", "3")
	if len(h.Values("A")) != 1 || h.Has("B") {
		t.Fatalf("original mutated: %q", h.String())
	}
}
