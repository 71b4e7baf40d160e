package compute

import (
	"io"
	"io/fs"
	"path"
	"strings"
)

// Program sources live under a fixed namespace with a fixed extension:
// the logical name "post/blur" maps to "compute/post/blur.wgsl".
const (
	sourceDir = "compute"
	sourceExt = ".wgsl"
)

// SourceProvider supplies raw bytes for a logical program name. It is the
// boundary to the host's asset system; the environment only ever opens and
// fully reads a stream.
type SourceProvider interface {
	// Open resolves name and opens its source for reading. The error
	// satisfies errors.Is(err, fs.ErrNotExist) when no source exists under
	// the name.
	Open(name string) (io.ReadCloser, error)
}

// ProgramPath maps a logical program name to its source path under the
// fixed naming scheme.
func ProgramPath(name string) string {
	return path.Join(sourceDir, name+sourceExt)
}

// ProgramName is the inverse of ProgramPath. It reports ok=false for paths
// outside the compute namespace or with a foreign extension.
func ProgramName(p string) (name string, ok bool) {
	p = path.Clean(p)
	rest, found := strings.CutPrefix(p, sourceDir+"/")
	if !found {
		return "", false
	}
	name, found = strings.CutSuffix(rest, sourceExt)
	if !found || name == "" {
		return "", false
	}
	return name, true
}

// FSProvider serves program sources from an fs.FS root (an embed.FS, an
// os.DirFS over an asset directory, a zip pack...).
type FSProvider struct {
	fsys fs.FS
}

// NewFSProvider creates a provider rooted at fsys.
func NewFSProvider(fsys fs.FS) *FSProvider {
	return &FSProvider{fsys: fsys}
}

// Open opens the source for name under the fixed naming scheme.
func (p *FSProvider) Open(name string) (io.ReadCloser, error) {
	return p.fsys.Open(ProgramPath(name))
}
