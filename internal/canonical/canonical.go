// Package canonical serializes item attributes into a deterministic JSON form.
package canonical

import (
	"bytes"
	"cmp"
	"encoding/json"
	"slices"

	"github.com/jacentio/opendelivery/backend"
)

// Entry is one name/value pair of the serialized form.
type Entry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Entries flattens attrs into one entry per stored value, ordered by value
// descending. Equal values are ordered by name ascending.
func Entries(attrs backend.Attributes) []Entry {
	entries := make([]Entry, 0, len(attrs))
	for name, values := range attrs {
		for _, v := range values {
			entries = append(entries, Entry{Name: name, Value: v})
		}
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return entries
}

// Serialize returns attrs as [{"name":...,"value":...},...].
// ok is false when attrs holds no values at all.
func Serialize(attrs backend.Attributes) (string, bool, error) {
	entries := Entries(attrs)
	if len(entries) == 0 {
		return "", false, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entries); err != nil {
		return "", false, err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), true, nil
}
