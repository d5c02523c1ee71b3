package decomp

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/NicolasKol/reforge/internal/stageerr"
)

// LoadReport reads a previously written report.json.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stageerr.New(stageerr.InputUnreadable, "failed to read "+path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, stageerr.New(stageerr.InputMalformed, "failed to decode "+path, err)
	}
	return &r, nil
}

// LoadFunctionRows reads a previously written functions.jsonl.
func LoadFunctionRows(path string) ([]FunctionRow, error) {
	var rows []FunctionRow
	if err := loadJSONL(path, func(line []byte) error {
		var row FunctionRow
		if err := json.Unmarshal(line, &row); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// LoadCfgRows reads a previously written cfg.jsonl.
func LoadCfgRows(path string) ([]CfgRow, error) {
	var rows []CfgRow
	if err := loadJSONL(path, func(line []byte) error {
		var row CfgRow
		if err := json.Unmarshal(line, &row); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

func loadJSONL(path string, each func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return stageerr.New(stageerr.InputUnreadable, "failed to read "+path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := each(line); err != nil {
			return stageerr.New(stageerr.InputMalformed, "failed to decode row in "+path, err)
		}
	}
	return scanner.Err()
}
