package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Document is a JSON file holding persistent plugin data. Each plugin
// gets its own namespace under the "plugins" object so two plugins can
// never see each other's keys. Mutations stay in memory until Flush.
type Document struct {
	mu   sync.RWMutex
	path string
	raw  []byte
}

// OpenDocument reads the JSON document at path, creating an empty one
// in memory when the file does not exist yet.
func OpenDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		raw = []byte("{}")
	case err != nil:
		return nil, fmt.Errorf("open store document: %w", err)
	case !gjson.ValidBytes(raw):
		return nil, fmt.Errorf("store document %s is not valid JSON", path)
	}
	return &Document{path: path, raw: raw}, nil
}

// Flush writes the document to disk. The write goes through a temp file
// and a rename so a crash never leaves a torn document.
func (d *Document) Flush() error {
	d.mu.RLock()
	raw := d.raw
	d.mu.RUnlock()

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("flush store document: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".store-*")
	if err != nil {
		return fmt.Errorf("flush store document: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("flush store document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("flush store document: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("flush store document: %w", err)
	}
	return nil
}

// Namespace returns the Store view rooted at plugins.<name>.
func (d *Document) Namespace(name string) Store {
	return &namespace{doc: d, prefix: "plugins." + escapeKey(name)}
}

// namespace is a Store backed by one object inside the document.
type namespace struct {
	doc    *Document
	prefix string
}

func (n *namespace) keyPath(key string) string {
	return n.prefix + "." + escapeKey(key)
}

func (n *namespace) Get(key string) (any, bool) {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()

	res := gjson.GetBytes(n.doc.raw, n.keyPath(key))
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

func (n *namespace) Set(key string, value any) {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()

	raw, err := sjson.SetBytes(n.doc.raw, n.keyPath(key), value)
	if err != nil {
		return
	}
	n.doc.raw = raw
}

func (n *namespace) Has(key string) bool {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()
	return gjson.GetBytes(n.doc.raw, n.keyPath(key)).Exists()
}

func (n *namespace) Delete(key string) bool {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()

	path := n.keyPath(key)
	if !gjson.GetBytes(n.doc.raw, path).Exists() {
		return false
	}
	raw, err := sjson.DeleteBytes(n.doc.raw, path)
	if err != nil {
		return false
	}
	n.doc.raw = raw
	return true
}

func (n *namespace) GetAll() map[string]any {
	n.doc.mu.RLock()
	defer n.doc.mu.RUnlock()

	res := gjson.GetBytes(n.doc.raw, n.prefix)
	out := make(map[string]any)
	if !res.IsObject() {
		return out
	}
	res.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.Value()
		return true
	})
	return out
}

// escapeKey escapes path metacharacters so user keys with dots address
// a single JSON field instead of a nested path.
func escapeKey(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(key)
}
