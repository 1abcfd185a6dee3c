package coordinator

import (
	"github.com/cespare/xxhash/v2"
)

// fingerprints maps runtime paths to xxhash64 digests of their content.
type fingerprints map[string]uint64

func (c *Coordinator) fingerprint() (fingerprints, error) {
	paths, err := c.rt.ListFiles()
	if err != nil {
		return nil, err
	}
	fp := make(fingerprints, len(paths))
	for _, p := range paths {
		data, err := c.rt.ReadFile(p)
		if err != nil {
			continue
		}
		fp[p] = xxhash.Sum64(data)
	}
	return fp, nil
}

// changedSince returns the paths that are new or whose content differs from
// before, in the order the runtime lists them. Deleted files are ignored.
func (c *Coordinator) changedSince(before fingerprints) ([]string, map[string][]byte, error) {
	paths, err := c.rt.ListFiles()
	if err != nil {
		return nil, nil, err
	}

	var changed []string
	contents := make(map[string][]byte)
	for _, p := range paths {
		data, err := c.rt.ReadFile(p)
		if err != nil {
			continue
		}
		if prev, ok := before[p]; ok && prev == xxhash.Sum64(data) {
			continue
		}
		changed = append(changed, p)
		contents[p] = data
	}
	return changed, contents, nil
}
