// Package tickergroup loads the static ticker-group catalogue the
// worker treats as immutable input (§4.5 step 1, §6.4). The format
// and loading mechanics are explicitly out of scope in the
// specification; this is the minimal JSON reader the
// worker needs to get a symbol universe.
package tickergroup

import (
	"encoding/json"
	"fmt"
	"os"
)

// Catalogue maps group name to its member symbols.
type Catalogue map[string][]string

// Load reads a JSON file of {"group": ["SYM1","SYM2"], ...}.
func Load(path string) (Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ticker-group catalogue: %w", err)
	}
	var cat Catalogue
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing ticker-group catalogue: %w", err)
	}
	return cat, nil
}

// AllSymbols flattens every group into a deduplicated symbol list
// (§4.5 step 2 "load the set of all known symbols ... deduplicate").
func (c Catalogue) AllSymbols() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(c))
	for _, symbols := range c {
		for _, s := range symbols {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
