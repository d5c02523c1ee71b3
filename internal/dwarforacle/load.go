package dwarforacle

import (
	"encoding/json"
	"os"

	"github.com/NicolasKol/reforge/internal/stageerr"
)

// LoadReport reads a previously written oracle_report.json.
func LoadReport(path string) (*Report, error) {
	var r Report
	if err := loadJSON(path, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadFunctions reads a previously written oracle_functions.json.
func LoadFunctions(path string) (*FunctionsDoc, error) {
	var doc FunctionsDoc
	if err := loadJSON(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return stageerr.New(stageerr.InputUnreadable, "failed to read "+path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return stageerr.New(stageerr.InputMalformed, "failed to decode "+path, err)
	}
	return nil
}
