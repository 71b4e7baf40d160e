package compute

import (
	"errors"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"
)

func TestProgramPath(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"blur", "compute/blur.wgsl"},
		{"post/blur", "compute/post/blur.wgsl"},
	}
	for _, tt := range tests {
		if got := ProgramPath(tt.name); got != tt.want {
			t.Errorf("ProgramPath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestProgramName(t *testing.T) {
	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"compute/blur.wgsl", "blur", true},
		{"compute/post/blur.wgsl", "post/blur", true},
		{"compute/.wgsl", "", false},
		{"compute/blur.glsl", "", false},
		{"textures/blur.wgsl", "", false},
		{"blur.wgsl", "", false},
	}
	for _, tt := range tests {
		got, ok := ProgramName(tt.path)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ProgramName(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestProgramPathRoundTrip(t *testing.T) {
	for _, name := range []string{"blur", "post/blur", "a/b/c"} {
		got, ok := ProgramName(ProgramPath(name))
		if !ok || got != name {
			t.Errorf("round trip of %q = (%q, %v)", name, got, ok)
		}
	}
}

func TestFSProvider(t *testing.T) {
	fsys := fstest.MapFS{
		"compute/blur.wgsl": {Data: []byte("@compute fn main() {}")},
	}
	p := NewFSProvider(fsys)

	rc, err := p.Open("blur")
	if err != nil {
		t.Fatalf("Open(blur) = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll = %v", err)
	}
	if string(data) != "@compute fn main() {}" {
		t.Errorf("unexpected source: %q", data)
	}

	if _, err := p.Open("missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open(missing) = %v, want fs.ErrNotExist", err)
	}
}
