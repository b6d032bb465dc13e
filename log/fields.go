// Package log holds the pieces shared by the Logger adapters in its
// subpackages.
package log

import (
	"sort"

	"github.com/unkn0wn-root/mogilefs"
)

// SortedKeys returns the keys of f in order, so adapters emit fields in a
// stable order regardless of map iteration.
func SortedKeys(f mogilefs.Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
