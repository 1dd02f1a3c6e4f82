package correction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rvilela/acerto/internal/ledger"
)

// appendJSONL appends one record to the fallback history file, creating
// parent directories as needed.
func appendJSONL(path string, rec ledger.CorrectionRecord) error {
	if path == "" {
		return fmt.Errorf("correction: no fallback log configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("correction: fallback log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("correction: open fallback log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("correction: marshal record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("correction: write fallback log: %w", err)
	}
	return nil
}
