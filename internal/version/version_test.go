package version

import "testing"

func TestGetNeverEmpty(t *testing.T) {
	if Get() == "" {
		t.Fatal("expected a non-empty version string")
	}
}

func TestGetTrimsEmbeddedWhitespace(t *testing.T) {
	if v := Get(); v != "" && (v[0] == ' ' || v[len(v)-1] == '\n') {
		t.Errorf("version %q carries surrounding whitespace", v)
	}
}
