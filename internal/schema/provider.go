// Package schema checks that a replica was built against the same canonical
// data definition as the authoritative store.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Canonical is one loaded revision of the canonical data definition.
type Canonical struct {
	Fingerprint string
	Files       []string
	Version     int64
}

// Provider holds the canonical definition for the process lifetime. It is
// read once at construction and again only on an explicit Reload.
type Provider struct {
	src     fs.FS
	dir     string
	current Canonical
	mu      sync.RWMutex
}

// NewProvider loads the *.sql files under dir in src
func NewProvider(src fs.FS, dir string) (*Provider, error) {
	p := &Provider{src: src, dir: dir}
	if _, err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Canonical returns the currently loaded definition
func (p *Provider) Canonical() Canonical {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Reload re-reads the definition and swaps it in atomically. On failure the
// previous definition stays in place. Only an on-disk source can change
// between reloads; an embedded one always yields the same revision.
func (p *Provider) Reload() (Canonical, error) {
	c, err := load(p.src, p.dir)
	if err != nil {
		return Canonical{}, err
	}

	p.mu.Lock()
	p.current = c
	p.mu.Unlock()

	return c, nil
}

func load(src fs.FS, dir string) (Canonical, error) {
	files, err := fs.Glob(src, path.Join(dir, "*.sql"))
	if err != nil {
		return Canonical{}, fmt.Errorf("failed to list schema files: %w", err)
	}
	if len(files) == 0 {
		return Canonical{}, fmt.Errorf("no schema files in %q", dir)
	}
	sort.Strings(files)

	h := sha256.New()
	names := make([]string, 0, len(files))
	for _, f := range files {
		content, err := fs.ReadFile(src, f)
		if err != nil {
			return Canonical{}, fmt.Errorf("failed to read schema file %s: %w", f, err)
		}
		name := path.Base(f)
		h.Write([]byte(name + "\n"))
		h.Write(content)
		names = append(names, name)
	}

	version, err := versionOf(names[len(names)-1])
	if err != nil {
		return Canonical{}, err
	}

	return Canonical{
		Fingerprint: hex.EncodeToString(h.Sum(nil)),
		Version:     version,
		Files:       names,
	}, nil
}

// versionOf parses the numeric prefix of a goose migration name
func versionOf(name string) (int64, error) {
	prefix, _, _ := strings.Cut(name, "_")
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("schema file %s has no version prefix: %w", name, err)
	}
	return v, nil
}
