package theme

import (
	"path/filepath"
	"testing"
)

func TestReplacePlaceholder(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
		count    int
	}{
		{"json value", `"version": "version"`, `"version": "1.2.3"`, 1},
		{"at-at token", `"version": "@@version"`, `"version": "1.2.3"`, 1},
		{"inline", `Hive @@version (build @@version)`, `Hive 1.2.3 (build 1.2.3)`, 2},
		{"no placeholder", `{"title": "Hive"}`, `{"title": "Hive"}`, 0},
		{"key is kept", `{"version": "0.0.0"}`, `{"version": "0.0.0"}`, 0},
		{"longer word", `"version": "@@versions"`, `"version": "@@versions"`, 0},
		{"other key", `{"description": "version"}`, `{"description": "version"}`, 0},
		{"compact json", `{"description": "version","version":"version"}`, `{"description": "version","version":"1.2.3"}`, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, count := ReplacePlaceholder([]byte(tc.input), "version", "1.2.3")
			if string(out) != tc.expected || count != tc.count {
				t.Errorf("expected %q (%d), got %q (%d)", tc.expected, tc.count, out, count)
			}
		})
	}
}

func TestStampManifest(t *testing.T) {
	root := newFixture(t)
	p := newTestPipeline(t, root, nil)

	if err := p.StampManifest(testContext()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	manifest := readFile(t, p.Paths.Dest(Templates, "manifest.json"))
	if manifest != `{"title": "Hive", "version": "1.2.3"}` {
		t.Errorf("unexpected manifest %s", manifest)
	}
}

func TestStampManifest_WithoutPlaceholder(t *testing.T) {
	root := newFixture(t)
	writeFile(t, root, "templates/manifest.json", `{"title": "Hive"}`)
	p := newTestPipeline(t, root, nil)

	if err := p.StampManifest(testContext()); err != nil {
		t.Fatalf("a missing placeholder must not fail: %v", err)
	}

	manifest := readFile(t, filepath.Join(p.Paths.ThemeDir, "manifest.json"))
	if manifest != `{"title": "Hive"}` {
		t.Errorf("unexpected manifest %s", manifest)
	}
}
