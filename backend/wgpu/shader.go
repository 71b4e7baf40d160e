package wgpu

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gogpu/naga"

	"github.com/synth07/Veil/internal/cache"
)

// spirvCacheLimit bounds the number of compiled translation results kept
// around. Hot reload recompiles the same handful of sources over and over;
// anything beyond that is churn.
const spirvCacheLimit = 64

// spirvCache memoizes WGSL-to-SPIR-V translation keyed by source hash, so
// that reloading an unchanged file (or flipping an edit back) skips the
// compiler.
type spirvCache struct {
	words *cache.Cache[string, []uint32]
}

func newSPIRVCache() *spirvCache {
	return &spirvCache{words: cache.New[string, []uint32](spirvCacheLimit)}
}

func (c *spirvCache) compile(source string) ([]uint32, error) {
	sum := sha256.Sum256([]byte(source))
	key := hex.EncodeToString(sum[:])
	if words, ok := c.words.Get(key); ok {
		return words, nil
	}
	words, err := compileWGSL(source)
	if err != nil {
		return nil, err
	}
	c.words.Set(key, words)
	return words, nil
}

// compileWGSL compiles WGSL source to SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}

	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// computeEntryPoints returns the names of the @compute entry points declared
// in WGSL source. The scan is lexical: comments are stripped, then each
// @compute attribute is paired with the next fn declaration. Kernel name
// lookups check membership here, which gives a stable answer for a given
// source regardless of driver state.
func computeEntryPoints(source string) map[string]struct{} {
	entries := make(map[string]struct{})
	src := stripComments(source)
	for i := 0; ; {
		j := strings.Index(src[i:], "@compute")
		if j < 0 {
			break
		}
		i += j + len("@compute")
		if i < len(src) && isIdentByte(src[i]) {
			continue // longer identifier, not the attribute
		}
		if name, ok := nextFnName(src[i:]); ok {
			entries[name] = struct{}{}
		}
	}
	return entries
}

// nextFnName finds the next fn keyword and returns the identifier after it.
func nextFnName(src string) (string, bool) {
	for i := 0; i < len(src); {
		j := strings.Index(src[i:], "fn")
		if j < 0 {
			return "", false
		}
		k := i + j
		i = k + 2
		// Word boundaries on both sides, otherwise this is part of an
		// identifier like "defn" or "fnord".
		if k > 0 && isIdentByte(src[k-1]) {
			continue
		}
		if k+2 < len(src) && isIdentByte(src[k+2]) {
			continue
		}
		p := k + 2
		for p < len(src) && isSpaceByte(src[p]) {
			p++
		}
		start := p
		for p < len(src) && isIdentByte(src[p]) {
			p++
		}
		if p == start {
			return "", false
		}
		return src[start:p], true
	}
	return "", false
}

// stripComments removes // line comments and (nesting) block comments.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case strings.HasPrefix(src[i:], "/*"):
			depth := 1
			i += 2
			for i < len(src) && depth > 0 {
				switch {
				case strings.HasPrefix(src[i:], "/*"):
					depth++
					i += 2
				case strings.HasPrefix(src[i:], "*/"):
					depth--
					i += 2
				default:
					i++
				}
			}
			b.WriteByte(' ') // keep token separation
		default:
			b.WriteByte(src[i])
			i++
		}
	}
	return b.String()
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
