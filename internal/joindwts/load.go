package joindwts

import (
	"encoding/json"
	"os"

	"github.com/NicolasKol/reforge/internal/stageerr"
)

// LoadPairs reads a previously written alignment_pairs.json.
func LoadPairs(path string) (*PairsDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stageerr.New(stageerr.InputUnreadable, "failed to read "+path, err)
	}
	var doc PairsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, stageerr.New(stageerr.InputMalformed, "failed to decode "+path, err)
	}
	return &doc, nil
}
