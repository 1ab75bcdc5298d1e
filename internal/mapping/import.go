package mapping

import (
	"encoding/json"
	"fmt"
	"os"
)

// ImportResult contains statistics about a legacy import.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportLegacyJSON loads a legacy issue_mapping.json file (a flat
// local_id → jira_key object, the format the original sync script
// wrote) into the store. Existing mappings for the same local id are
// left untouched and counted as skipped.
func (s *Store) ImportLegacyJSON(path string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading legacy mapping file: %w", err)
	}

	var legacy map[string]string
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("parsing legacy mapping file: %w", err)
	}

	result := &ImportResult{}
	for localID, key := range legacy {
		if localID == "" || key == "" {
			result.Skipped++
			continue
		}
		if _, exists, err := s.Get(localID); err != nil {
			return result, err
		} else if exists {
			result.Skipped++
			continue
		}
		if err := s.Put(localID, key); err != nil {
			return result, err
		}
		result.Imported++
	}

	return result, nil
}
