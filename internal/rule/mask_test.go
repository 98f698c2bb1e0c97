package rule

import "testing"

func TestParseEvents(t *testing.T) {
	cases := []struct {
		in      []string
		want    EventMask
		wantErr bool
	}{
		{[]string{"CREATE"}, Create | DontFollow, false},
		{[]string{"create", "moved_to"}, Create | MovedTo | DontFollow, false},
		{[]string{"CLOSE_WRITE"}, CloseWrite | DontFollow, false},
		{nil, 0, true},
		{[]string{""}, 0, true},
		{[]string{"BOGUS"}, 0, true},
	}
	for _, c := range cases {
		got, err := ParseEvents(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseEvents(%v): expected error, got mask %v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseEvents(%v): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseEvents(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestEventMaskString(t *testing.T) {
	m := Create | MovedTo
	got := m.String()
	want := "CREATE | MOVED_TO"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	if (EventMask(0)).String() != "(none)" {
		t.Errorf("zero mask should render as (none)")
	}

	// DontFollow never shows up in the rendered keyword list, even though
	// it's folded into every parsed mask.
	if (Create | DontFollow).String() != "CREATE" {
		t.Errorf("DontFollow leaked into String(): %q", (Create | DontFollow).String())
	}
}

func TestEventMaskHasIntersects(t *testing.T) {
	m := Create | Delete
	if !m.Has(Create) {
		t.Error("Has(Create) should be true")
	}
	if m.Has(Create | Modify) {
		t.Error("Has should require every requested bit")
	}
	if !m.Intersects(Modify | Delete) {
		t.Error("Intersects should be true when any bit overlaps")
	}
	if m.Intersects(Modify | Attrib) {
		t.Error("Intersects should be false with no overlap")
	}
}
