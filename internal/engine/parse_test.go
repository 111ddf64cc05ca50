package engine

import "testing"

func TestParseCategories(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2", "Fashion"},
		{"2, 3", "Fashion,Food"},
		{"fashion", "Fashion"},
		{"FOOD, food, 3", "Food"},
		{"2, fashion", "Fashion"},
		{"10", "Education"},
		{"11", "General"},
		{"0", "General"},
		{"gibberish", "General"},
		{"", "General"},
		{" , , ", "General"},
		{"tech, 1", "Tech,Business"},
	}
	for _, tc := range cases {
		if got := parseCategories(tc.in); got != tc.want {
			t.Errorf("parseCategories(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseGender(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"male", "Male"},
		{"  FEMALE ", "Female"},
		{"everyone", "All"},
		{"", "All"},
		{"whatever", "All"},
	}
	for _, tc := range cases {
		if got := parseGender(tc.in); got != tc.want {
			t.Errorf("parseGender(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in         string
		price      float64
		negotiable bool
		ok         bool
	}{
		{"5000", 5000, false, true},
		{"₦15,000", 15000, false, true},
		{"$1,200.50", 1200.50, false, true},
		{"N3000", 3000, false, true},
		{"free", 0, false, true},
		{"0", 0, false, true},
		{"Negotiable", 0, true, true},
		{"-50", 0, false, false},
		{"abc", 0, false, false},
		{"", 0, false, false},
		{"inf", 0, false, false},
		{"+inf", 0, false, false},
		{"-inf", 0, false, false},
		{"infinity", 0, false, false},
		{"nan", 0, false, false},
		{"NaN", 0, false, false},
		{"1e400", 0, false, false},
	}
	for _, tc := range cases {
		price, negotiable, ok := parsePrice(tc.in)
		if price != tc.price || negotiable != tc.negotiable || ok != tc.ok {
			t.Errorf("parsePrice(%q) = (%v, %v, %v), want (%v, %v, %v)",
				tc.in, price, negotiable, ok, tc.price, tc.negotiable, tc.ok)
		}
	}
}
