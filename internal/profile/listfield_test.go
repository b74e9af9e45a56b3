package profile

import "testing"

func TestParseListField(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   []string
	}{
		{"empty", "", nil},
		{"single", "peanuts", []string{"peanuts"}},
		{"multiple", "peanuts, shellfish, soy", []string{"peanuts", "shellfish", "soy"}},
		{"extra whitespace", "  peanuts ,  shellfish  ", []string{"peanuts", "shellfish"}},
		{"empty segments", "peanuts,,shellfish,", []string{"peanuts", "shellfish"}},
		{"case-insensitive dedup", "Peanuts, peanuts, PEANUTS", []string{"Peanuts"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseListField(tt.stored)
			assertItems(t, got, tt.want)
		})
	}
}

func TestListFieldAdd(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		add     []string
		want    []string
	}{
		{"to empty", "", []string{"peanuts"}, []string{"peanuts"}},
		{"union", "shellfish", []string{"peanuts"}, []string{"shellfish", "peanuts"}},
		{"duplicate ignored", "shellfish", []string{"Shellfish"}, []string{"shellfish"}},
		{"mixed", "shellfish, soy", []string{"SOY", "eggs"}, []string{"shellfish", "soy", "eggs"}},
		{"blank items skipped", "shellfish", []string{"", "  "}, []string{"shellfish"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseListField(tt.stored).Add(tt.add...)
			assertItems(t, got, tt.want)
		})
	}
}

func TestListFieldRemove(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		remove []string
		want   []string
	}{
		{"exact", "peanuts, shellfish", []string{"peanuts"}, []string{"shellfish"}},
		{"case-insensitive", "Peanuts, shellfish", []string{"peanuts"}, []string{"shellfish"}},
		{"absent item", "peanuts", []string{"soy"}, []string{"peanuts"}},
		{"all", "peanuts", []string{"peanuts"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseListField(tt.stored).Remove(tt.remove...)
			assertItems(t, got, tt.want)
		})
	}
}

func TestMergeList(t *testing.T) {
	tests := []struct {
		name     string
		stored   string
		incoming string
		action   string
		want     string
	}{
		{"add to existing", "shellfish", "peanuts", "add", "shellfish, peanuts"},
		{"add duplicate", "shellfish", "Shellfish", "add", "shellfish"},
		{"add multiple", "shellfish", "peanuts, soy", "add", "shellfish, peanuts, soy"},
		{"remove", "shellfish, peanuts", "shellfish", "remove", "peanuts"},
		{"remove case-insensitive", "Shellfish, peanuts", "SHELLFISH", "remove", "peanuts"},
		{"replace", "shellfish, peanuts", "soy", "replace", "soy"},
		{"replace normalizes", "shellfish", " soy , soy ,eggs", "replace", "soy, eggs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeList(tt.stored, tt.incoming, tt.action)
			if got != tt.want {
				t.Errorf("MergeList(%q, %q, %q) = %q, want %q",
					tt.stored, tt.incoming, tt.action, got, tt.want)
			}
		})
	}
}

func TestListFieldContains(t *testing.T) {
	lf := ParseListField("Peanuts, shellfish")
	if !lf.Contains("peanuts") {
		t.Error("Contains(\"peanuts\") = false, want true")
	}
	if !lf.Contains("  SHELLFISH ") {
		t.Error("Contains with whitespace and case = false, want true")
	}
	if lf.Contains("soy") {
		t.Error("Contains(\"soy\") = true, want false")
	}
}

func assertItems(t *testing.T, got ListField, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v (%d items), want %v (%d items)", got, len(got), want, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
