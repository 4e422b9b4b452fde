package report

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies a working page list. Runs over the same pages in
// the same order share a fingerprint, which is what history comparisons key
// on.
func Fingerprint(pages []string) string {
	d := xxhash.New()
	for _, p := range pages {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
