package router

import "testing"

func TestSuggest(t *testing.T) {
	r := New()
	mustBind(t, r, "/lineage", "lineage")
	mustBind(t, r, "/query", "query")

	tests := []struct {
		name string
		path string
		want string
		ok   bool
	}{
		{"typo", "/lineag", "/lineage", true},
		{"transposed", "/qurey", "/query", true},
		{"case folded", "/Lineage", "/lineage", true},
		{"trailing slash", "/lineage/", "/lineage", true},
		{"far off", "/settings/profile/email", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Suggest(tt.path)
			if ok != tt.ok {
				t.Fatalf("Suggest(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Suggest(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestSuggestEmptyRouter(t *testing.T) {
	r := New()
	if got, ok := r.Suggest("/lineage"); ok {
		t.Errorf("Suggest on empty router = %q, want none", got)
	}
}
