// Package inventory reads the config store: a directory holding one file per
// host. The file name is the host identifier and each non-blank line is an
// absolute remote path to back up.
package inventory

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"
)

type HostConfig struct {
	Host string
	// Paths are kept in file order, duplicates included.
	Paths []string
}

// Entry is one host file found in the config store.
type Entry struct {
	Host string
	Path string
}

// List returns every regular file in dir. Hidden files are skipped.
func List(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Annotate(err, "read config store")
	}

	out := make([]Entry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		p := filepath.Join(dir, name)
		fi, err := os.Stat(p)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		out = append(out, Entry{Host: name, Path: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out, nil
}

// Load reads the host file at path.
func Load(path string) (HostConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return HostConfig{}, errors.Annotate(err, "read host config")
	}
	return Parse(filepath.Base(path), b), nil
}

// Parse splits b into remote paths. Blank lines are ignored.
func Parse(host string, b []byte) HostConfig {
	hc := HostConfig{Host: host}
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		if ln == "" {
			continue
		}
		hc.Paths = append(hc.Paths, ln)
	}
	return hc
}
