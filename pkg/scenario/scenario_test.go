package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuiltin(t *testing.T) {
	c := Default()
	var ids []string
	for _, s := range c.List() {
		ids = append(ids, s.ID)
	}
	if got := strings.Join(ids, ","); got != "generic,ikea,pc-build,wiring" {
		t.Errorf("ids = %s", got)
	}

	s, err := c.Lookup("pc-build")
	if err != nil {
		t.Fatal(err)
	}
	instr := s.SystemInstruction()
	if !strings.HasPrefix(instr, "You are Kinetic") {
		t.Error("instruction missing base persona")
	}
	if !strings.Contains(instr, "\n\nCurrent Context: PC Building.") {
		t.Error("instruction missing context paragraph")
	}
}

func TestLookup(t *testing.T) {
	c := Default()

	t.Run("empty selects first", func(t *testing.T) {
		s, err := c.Lookup("")
		if err != nil || s.ID != DefaultID {
			t.Errorf("Lookup(\"\") = %q, %v", s.ID, err)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := c.Lookup("juggling")
		if !errors.Is(err, ErrUnknown) {
			t.Errorf("err = %v, want ErrUnknown", err)
		}
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	data := `scenarios:
  - id: bike
    name: Bike Repair
    description: Derailleur and brake tuning.
    context: The user is servicing a bicycle.
  - id: ikea
    name: Flat Pack
    context: Overridden.
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	list := c.List()
	if len(list) != 5 {
		t.Fatalf("len = %d, want 5", len(list))
	}
	if list[1].ID != "ikea" || list[1].Name != "Flat Pack" {
		t.Errorf("override lost position or content: %+v", list[1])
	}
	bike, err := c.Lookup("bike")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(bike.SystemInstruction(), "Current Context: The user is servicing a bicycle.") {
		t.Errorf("instruction = %q", bike.SystemInstruction())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "scenarios: [\n"},
		{"missing id", "scenarios:\n  - name: X\n"},
		{"missing name", "scenarios:\n  - id: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Parse() accepted invalid input")
			}
		})
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile() accepted missing file")
	}
}
