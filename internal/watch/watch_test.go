package watch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsIgnored(t *testing.T) {
	w := &Watcher{WorkDir: "/work"}
	patterns := []string{"*.log", "node_modules/", ".git", "build/*.tmp"}

	cases := []struct {
		path string
		want bool
	}{
		{"/work/app.log", true},
		{"/work/deep/nested/trace.log", true},
		{"/work/node_modules/pkg/index.js", true},
		{"/work/.git/HEAD", true},
		{"/work/build/cache.tmp", true},
		{"/work/main.go", false},
		{"/work/logs.go", false},
		{"/work/builder/out.tmp", false},
	}
	for _, tc := range cases {
		if got := w.isIgnored(tc.path, patterns); got != tc.want {
			t.Errorf("isIgnored(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestLoadIgnorePatternsMergesFiles(t *testing.T) {
	dir := t.TempDir()
	gitignore := "# build artifacts\n*.o\n\ndist/\n"
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(gitignore), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".devpulseignore"), []byte("*.bak\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := &Watcher{WorkDir: dir, IgnorePatterns: []string{"*.log"}}
	patterns, err := w.loadIgnorePatterns()
	if err != nil {
		t.Fatalf("loadIgnorePatterns: %v", err)
	}

	want := []string{"*.log", "*.o", "dist/", "*.bak"}
	if len(patterns) != len(want) {
		t.Fatalf("got %d patterns %v, want %v", len(patterns), patterns, want)
	}
	for i, p := range want {
		if patterns[i] != p {
			t.Errorf("pattern[%d] = %q, want %q", i, patterns[i], p)
		}
	}
}

func TestLoadIgnorePatternsMissingFiles(t *testing.T) {
	w := &Watcher{WorkDir: t.TempDir(), IgnorePatterns: []string{"vendor/"}}
	patterns, err := w.loadIgnorePatterns()
	if err != nil {
		t.Fatalf("loadIgnorePatterns: %v", err)
	}
	if len(patterns) != 1 || patterns[0] != "vendor/" {
		t.Errorf("got %v, want just the configured pattern", patterns)
	}
}
