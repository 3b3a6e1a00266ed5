// Package env composes the environment handed to supervised services.
package env

import (
	"os"
	"sort"
	"strings"
)

// Env layers variables over the daemon's own environment. Later layers win:
// OS environment, then Global, then the per-service list passed to Merge.
type Env struct {
	Global map[string]string
	base   map[string]string
}

// New returns an Env whose base is the current process environment and
// whose global layer is parsed from "K=V" entries.
func New(global []string) *Env {
	return &Env{Global: Parse(global), base: Parse(os.Environ())}
}

// Parse turns "K=V" entries into a map. Entries without '=' or with an empty
// key are ignored.
func Parse(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// Merge composes the final sorted "K=V" list for one service. ${VAR} and
// $VAR references in values are expanded against the composed set, one level
// deep.
func (e *Env) Merge(perService []string) []string {
	m := make(map[string]string, len(e.base)+len(e.Global)+len(perService))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.Global {
		m[k] = v
	}
	for k, v := range Parse(perService) {
		m[k] = v
	}

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+os.Expand(v, func(name string) string { return m[name] }))
	}
	sort.Strings(out)
	return out
}
