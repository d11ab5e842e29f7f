// Package drift detects structural changes in provider payloads by
// comparing each page's field-path signature against a rolling baseline
// per (provider, endpoint).
package drift

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/ledgerline/catalog-ingest/internal/model"
)

const (
	// maxDepth bounds how deep signature extraction descends.
	maxDepth = 4
	// arraySample bounds how many array elements contribute to the signature.
	arraySample = 3
)

// Signature maps observed field paths to their inferred primitive type.
// Array hops are written as "[]", nested fields with dots:
// "data.products[].rate".
type Signature map[string]string

// Extract computes the signature of a decoded JSON payload.
func Extract(payload any) Signature {
	sig := make(Signature)
	walk(payload, "", 0, sig)
	return sig
}

func walk(v any, path string, depth int, sig Signature) {
	if depth > maxDepth {
		return
	}
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			p := k
			if path != "" {
				p = path + "." + k
			}
			record(sig, p, typeName(child))
			walk(child, p, depth+1, sig)
		}
	case []any:
		p := "[]"
		if path != "" {
			p = path + "[]"
		}
		for i, child := range x {
			if i >= arraySample {
				break
			}
			record(sig, p, typeName(child))
			walk(child, p, depth+1, sig)
		}
	}
}

// record notes the type at a path; conflicting observations within one
// payload (e.g. heterogeneous array elements) collapse to "mixed".
func record(sig Signature, path, typ string) {
	if prev, ok := sig[path]; ok && prev != typ {
		sig[path] = "mixed"
		return
	}
	sig[path] = typ
}

func typeName(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

// Hash returns a stable content hash of the signature.
func (s Signature) Hash() string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{'='})
		h.Write([]byte(s[p]))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Change is one structural difference between two signatures.
type Change struct {
	Kind     model.DriftKind
	Path     string
	Previous string
	Observed string
}

// Diff returns the changes from old to new, ordered by path.
func Diff(oldSig, newSig Signature) []Change {
	var changes []Change

	for path, oldType := range oldSig {
		newType, ok := newSig[path]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: model.DriftFieldRemoved, Path: path, Previous: oldType})
		case newType != oldType:
			changes = append(changes, Change{Kind: model.DriftTypeChanged, Path: path, Previous: oldType, Observed: newType})
		}
	}
	for path, newType := range newSig {
		if _, ok := oldSig[path]; !ok {
			changes = append(changes, Change{Kind: model.DriftFieldAdded, Path: path, Observed: newType})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}
