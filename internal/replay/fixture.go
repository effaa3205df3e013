package replay

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/vault-sentinel/go-controlplane/internal/logging"
)

// #endregion

// #region fixture

// Fixture is a portable bundle of recorded gate decisions, used to pin the
// scoring behavior in CI without a live database.
type Fixture struct {
	Name    string               `json:"name"`
	Records []logging.GateRecord `json:"records"`
}

// LoadFixture reads a JSON fixture from disk.
func LoadFixture(path string) (Fixture, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(blob, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

// SaveFixture writes records out as a JSON fixture.
func SaveFixture(path, name string, records []logging.GateRecord) error {
	blob, err := json.MarshalIndent(Fixture{Name: name, Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(blob, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture
