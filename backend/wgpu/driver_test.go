package wgpu

import (
	"strings"
	"testing"

	"github.com/synth07/Veil/compute"
)

const minimalKernelWGSL = `@compute @workgroup_size(1)
fn main() {
}
`

func TestComputeEntryPoints(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{
			name:   "single entry",
			source: minimalKernelWGSL,
			want:   []string{"main"},
		},
		{
			name: "multiple entries",
			source: `
@compute @workgroup_size(64)
fn blur_h() {}

@compute @workgroup_size(64)
fn blur_v() {}
`,
			want: []string{"blur_h", "blur_v"},
		},
		{
			name: "non-compute stages ignored",
			source: `
@vertex
fn vs_main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }

@compute @workgroup_size(1)
fn tick() {}
`,
			want: []string{"tick"},
		},
		{
			name: "commented out entry ignored",
			source: `
// @compute @workgroup_size(1)
// fn ghost() {}
/* @compute
fn buried() {} */
@compute @workgroup_size(1)
fn real() {}
`,
			want: []string{"real"},
		},
		{
			name: "nested block comment",
			source: `/* outer /* inner */ still a comment */
@compute @workgroup_size(1)
fn after() {}
`,
			want: []string{"after"},
		},
		{
			name:   "no entries",
			source: `fn helper() -> f32 { return 1.0; }`,
			want:   nil,
		},
		{
			name:   "fn inside identifier not a keyword",
			source: `@compute @workgroup_size(1) fn defn_like() {}`,
			want:   []string{"defn_like"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeEntryPoints(tt.source)
			if len(got) != len(tt.want) {
				t.Fatalf("found %d entry points %v, want %d", len(got), got, len(tt.want))
			}
			for _, name := range tt.want {
				if _, ok := got[name]; !ok {
					t.Errorf("entry point %q not found in %v", name, got)
				}
			}
		})
	}
}

func TestStripComments(t *testing.T) {
	got := stripComments("a // x\nb /* c /* d */ e */ f")
	if strings.Contains(got, "x") || strings.Contains(got, "c") || strings.Contains(got, "d") || strings.Contains(got, "e") {
		t.Errorf("comment text survived: %q", got)
	}
	for _, keep := range []string{"a", "b", "f"} {
		if !strings.Contains(got, keep) {
			t.Errorf("code text %q stripped: %q", keep, got)
		}
	}
}

// skipIfNagaLimited skips tests that hit known naga limitations rather than
// real failures.
func skipIfNagaLimited(t *testing.T, err error) {
	t.Helper()
	msg := err.Error()
	if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
		t.Skipf("naga feature not yet implemented: %v", err)
	}
}

func TestCompileWGSL(t *testing.T) {
	words, err := compileWGSL(minimalKernelWGSL)
	if err != nil {
		skipIfNagaLimited(t, err)
		t.Fatalf("compileWGSL() = %v", err)
	}
	if len(words) == 0 {
		t.Fatal("compileWGSL returned no code")
	}
	// SPIR-V magic number, which also proves the word endianness.
	if words[0] != 0x07230203 {
		t.Errorf("words[0] = %#x, want SPIR-V magic 0x07230203", words[0])
	}
}

func TestCompileWGSLInvalidSource(t *testing.T) {
	if _, err := compileWGSL("@compute fn broken( {"); err == nil {
		t.Fatal("compileWGSL accepted invalid source")
	}
}

func TestSPIRVCacheMemoizes(t *testing.T) {
	c := newSPIRVCache()
	first, err := c.compile(minimalKernelWGSL)
	if err != nil {
		skipIfNagaLimited(t, err)
		t.Fatalf("compile() = %v", err)
	}
	second, err := c.compile(minimalKernelWGSL)
	if err != nil {
		t.Fatalf("second compile() = %v", err)
	}
	// Same backing array: the second call was a cache hit.
	if &first[0] != &second[0] {
		t.Error("identical source compiled twice")
	}
	if got := c.words.Len(); got != 1 {
		t.Errorf("cache holds %d entries, want 1", got)
	}
}

func TestDriverName(t *testing.T) {
	if got := New().Name(); got != "wgpu" {
		t.Errorf("Name() = %q, want %q", got, "wgpu")
	}
}

func TestDriverRegistered(t *testing.T) {
	if !compute.IsRegistered("wgpu") {
		t.Error("importing the package did not register the wgpu driver")
	}
	if compute.GetDriver("wgpu") == nil {
		t.Error("GetDriver(wgpu) = nil")
	}
}
