package router

import (
	"errors"
	"testing"
)

func TestCanonicalizePath(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantPath    string
		wantQuery   string
		wantChanged bool
	}{
		{"root", "/", "/", "", false},
		{"simple", "/lineage", "/lineage", "", false},
		{"empty input", "", "/", "", true},
		{"trailing slash", "/lineage/", "/lineage", "", true},
		{"root keeps slash", "/", "/", "", false},
		{"double slash", "/lineage//graph", "/lineage/graph", "", true},
		{"many slashes", "///query", "/query", "", true},
		{"dot segment", "/lineage/./graph", "/lineage/graph", "", true},
		{"dotdot resolves", "/lineage/../query", "/query", "", true},
		{"dotdot chain", "/a/b/../../query", "/query", "", true},
		{"missing leading slash", "lineage", "/lineage", "", true},
		{"query preserved", "/query?sql=select+1", "/query", "sql=select+1", false},
		{"query not canonicalized", "/query/?a=b//c", "/query", "a=b//c", true},
		{"escape kept encoded", "/lineage/stg%20orders", "/lineage/stg%20orders", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizePath(tt.input)
			if err != nil {
				t.Fatalf("CanonicalizePath(%q): %v", tt.input, err)
			}
			if got.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", got.Path, tt.wantPath)
			}
			if got.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", got.Query, tt.wantQuery)
			}
			if got.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", got.Changed, tt.wantChanged)
			}
		})
	}
}

func TestCanonicalizePathRejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"backslash", `/lineage\graph`, ErrBackslashInPath},
		{"nul byte", "/lineage\x00", ErrNullByteInPath},
		{"encoded nul", "/lineage%00", ErrNullByteInPath},
		{"encoded nul upper", "/lineage%00graph", ErrNullByteInPath},
		{"bad escape", "/lineage%GG", ErrInvalidPercentEscape},
		{"truncated escape", "/lineage%2", ErrInvalidPercentEscape},
		{"escapes root", "/../secret", ErrPathEscapesRoot},
		{"escapes root deep", "/a/../../secret", ErrPathEscapesRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CanonicalizePath(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CanonicalizePath(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestCanonicalizeNavPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"simple", "/lineage", "/lineage", false},
		{"with query", "/query?sql=select+1", "/query?sql=select+1", false},
		{"normalized", "/lineage//graph/", "/lineage/graph", false},
		{"http url", "http://evil.example/lineage", "", true},
		{"https url", "https://evil.example/", "", true},
		{"protocol relative", "//evil.example/lineage", "", true},
		{"relative", "lineage", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeNavPath(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("CanonicalizeNavPath(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CanonicalizeNavPath(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("CanonicalizeNavPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeSegment(t *testing.T) {
	tests := []struct {
		name       string
		segment    string
		isCatchAll bool
		want       string
		wantErr    error
	}{
		{"plain", "orders", false, "orders", nil},
		{"space", "stg%20orders", false, "stg orders", nil},
		{"encoded slash rejected", "a%2Fb", false, "", ErrEncodedSlashInSegment},
		{"encoded slash in catch-all", "a%2Fb", true, "a/b", nil},
		{"bad escape", "%zz", false, "", ErrInvalidPercentEscape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSegment(tt.segment, tt.isCatchAll)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("DecodeSegment(%q) error = %v, want %v", tt.segment, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeSegment(%q): %v", tt.segment, err)
			}
			if got != tt.want {
				t.Errorf("DecodeSegment(%q) = %q, want %q", tt.segment, got, tt.want)
			}
		})
	}
}

func TestSplitPathAndQuery(t *testing.T) {
	path, query := SplitPathAndQuery("/query?sql=select+1&limit=10")
	if path != "/query" {
		t.Errorf("path = %q, want /query", path)
	}
	if query != "sql=select+1&limit=10" {
		t.Errorf("query = %q", query)
	}

	path, query = SplitPathAndQuery("/lineage")
	if path != "/lineage" || query != "" {
		t.Errorf("got (%q, %q), want (/lineage, empty)", path, query)
	}
}
