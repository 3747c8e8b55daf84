package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Candidate is a plugin unit found on disk, before its script has been
// run or validated: a directory with an entry file, or a single
// self-contained script.
type Candidate struct {
	Name   string
	Dir    string
	Script string
}

// DiscoverDir scans one directory for plugin units. A subdirectory
// qualifies when it holds an init.lua or a script named after the
// directory; a bare <name>.lua file in the directory is a unit of its
// own. Units whose names don't fit the plugin name pattern are skipped,
// and a directory unit shadows a file unit of the same name.
func DiscoverDir(dir string) ([]Candidate, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan plugin dir: %w", err)
	}

	var out []Candidate
	seen := map[string]bool{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !namePattern.MatchString(name) {
			continue
		}
		script := entryScript(filepath.Join(dir, name), name)
		if script == "" {
			continue
		}
		seen[name] = true
		out = append(out, Candidate{
			Name:   name,
			Dir:    filepath.Join(dir, name),
			Script: script,
		})
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".lua")
		if !namePattern.MatchString(name) || seen[name] {
			continue
		}
		out = append(out, Candidate{
			Name:   name,
			Dir:    dir,
			Script: filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Discover scans every directory in order. When two directories carry a
// plugin with the same name, the later directory wins.
func Discover(dirs []string) ([]Candidate, error) {
	byName := make(map[string]Candidate)
	for _, dir := range dirs {
		found, err := DiscoverDir(dir)
		if err != nil {
			return nil, err
		}
		for _, c := range found {
			byName[c.Name] = c
		}
	}

	out := make([]Candidate, 0, len(byName))
	for _, c := range byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func entryScript(dir, name string) string {
	for _, base := range []string{"init.lua", name + ".lua"} {
		path := filepath.Join(dir, base)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
