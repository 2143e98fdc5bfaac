package status

import (
	"fmt"
	"strings"
)

// ParseNumstat parses `git diff --numstat -z` output into a map from path to
// whether git treats the content as binary. Renamed entries are keyed by
// their new path.
func ParseNumstat(raw []byte) (map[string]bool, error) {
	result := map[string]bool{}
	fields := strings.Split(string(raw), "\x00")

	for i := 0; i < len(fields); i++ {
		field := fields[i]
		if field == "" {
			continue
		}
		added, rest, ok := strings.Cut(field, "\t")
		if !ok {
			return result, fmt.Errorf("malformed numstat entry %q", field)
		}
		_, path, ok := strings.Cut(rest, "\t")
		if !ok {
			return result, fmt.Errorf("malformed numstat entry %q", field)
		}
		// Renames leave the path empty and follow with the old and new paths.
		if path == "" {
			if i+2 >= len(fields) {
				return result, fmt.Errorf("missing paths for %q", field)
			}
			path = fields[i+2]
			i += 2
		}
		result[path] = added == "-"
	}
	return result, nil
}
