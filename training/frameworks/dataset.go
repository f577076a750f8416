package frameworks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidDataset is returned when the training file is not prompt/completion JSONL
var ErrInvalidDataset = errors.New("invalid dataset")

// maxRecordSize bounds a single JSONL line
const maxRecordSize = 16 << 20

type record struct {
	Prompt     *string `json:"prompt"`
	Completion *string `json:"completion"`
}

// ValidateDataset checks that every non-blank line of path is a JSON object with
// non-empty prompt and completion strings. It returns the number of records.
func ValidateDataset(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)

	count, line := 0, 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return count, fmt.Errorf("%w: line %d: %v", ErrInvalidDataset, line, err)
		}
		if rec.Prompt == nil || strings.TrimSpace(*rec.Prompt) == "" {
			return count, fmt.Errorf("%w: line %d: missing prompt", ErrInvalidDataset, line)
		}
		if rec.Completion == nil || strings.TrimSpace(*rec.Completion) == "" {
			return count, fmt.Errorf("%w: line %d: missing completion", ErrInvalidDataset, line)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("%w: %v", ErrInvalidDataset, err)
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: no records", ErrInvalidDataset)
	}
	return count, nil
}
