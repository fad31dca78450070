package tickergroup

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AllSymbolsDeduplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "groups.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"banks": ["VCB", "CTG"],
		"vn30": ["VCB", "FPT"]
	}`), 0o600))

	cat, err := Load(path)
	require.NoError(t, err)

	symbols := cat.AllSymbols()
	sort.Strings(symbols)
	assert.Equal(t, []string{"CTG", "FPT", "VCB"}, symbols)
}
