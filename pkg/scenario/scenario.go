// Package scenario holds the task contexts a session can be started with.
// Each scenario's system instruction is the shared Kinetic persona plus a
// task-specific paragraph.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknown is returned when a scenario ID is not in the catalogue.
var ErrUnknown = errors.New("scenario: unknown id")

// DefaultID is selected when none is given.
const DefaultID = "generic"

// Base is the persona shared by every scenario.
const Base = `You are Kinetic, an expert real-time physical coach and safety guardian.
Your goal is to guide the user safely through physical tasks using their camera feed.

CORE BEHAVIORS:
1. **Safety First:** If the user is about to make a mistake (wrong wire, wrong tool, unsafe posture), shout "STOP" immediately.
2. **Be Spatial:** Don't say "over there". Say "to the left of the red cup" or "top right corner".
3. **Be Concise:** The user is busy working. Give short, direct commands.
4. **Multimodal:** Listen for clicks, snaps, or motor sounds to confirm actions.

You are communicating via a real-time voice interface. Keep responses short and conversational.`

// Scenario is a read-only task context.
type Scenario struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	// Context is appended to Base to form the system instruction.
	Context string `yaml:"context" json:"-"`
}

// SystemInstruction returns the full instruction sent at connect time.
func (s Scenario) SystemInstruction() string {
	if s.Context == "" {
		return Base
	}
	return Base + "\n\nCurrent Context: " + s.Context
}

// Validate checks required fields.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("scenario: id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("scenario %q: name is required", s.ID)
	}
	return nil
}

// Builtin returns the built-in scenarios in display order.
func Builtin() []Scenario {
	return []Scenario{
		{
			ID:          "generic",
			Name:        "General Assistant",
			Description: "General purpose helper for any physical task.",
			Context:     "General assistance mode. Identify what the user is doing and help them.",
		},
		{
			ID:          "ikea",
			Name:        "Furniture Assembly",
			Description: "Expert in flat-pack furniture assembly.",
			Context:     "The user is assembling furniture. Identify parts (screws, dowels, panels). Verify orientation before they fasten anything. Listen for the 'click' of cam locks.",
		},
		{
			ID:          "pc-build",
			Name:        "PC Building",
			Description: "Motherboard wiring and component installation.",
			Context:     "PC Building. WATCH OUT FOR STATIC. Ensure RAM clicks in. Be extremely careful with CPU pins. Shout STOP if they are forcing a connector.",
		},
		{
			ID:          "wiring",
			Name:        "Electrical Wiring",
			Description: "Household electrical repair guidance.",
			Context:     "Electrical work. FIRST COMMAND: Ask user to verify the breaker is off. Do not proceed until they show you the voltage tester reading zero. Identify Live (Brown/Black), Neutral (Blue/White), and Earth (Green/Yellow) wires.",
		},
	}
}

// Catalogue is an ordered, immutable set of scenarios.
type Catalogue struct {
	list []Scenario
	byID map[string]int
}

// NewCatalogue builds a catalogue. Later entries replace earlier ones with
// the same ID, keeping the original position.
func NewCatalogue(scenarios ...Scenario) (*Catalogue, error) {
	c := &Catalogue{byID: make(map[string]int, len(scenarios))}
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if i, ok := c.byID[s.ID]; ok {
			c.list[i] = s
			continue
		}
		c.byID[s.ID] = len(c.list)
		c.list = append(c.list, s)
	}
	return c, nil
}

// Default returns the built-in catalogue.
func Default() *Catalogue {
	c, _ := NewCatalogue(Builtin()...)
	return c
}

// Lookup returns the scenario with the given ID. An empty ID selects the
// first scenario.
func (c *Catalogue) Lookup(id string) (Scenario, error) {
	if id == "" {
		if len(c.list) == 0 {
			return Scenario{}, ErrUnknown
		}
		return c.list[0], nil
	}
	i, ok := c.byID[id]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	return c.list[i], nil
}

// List returns all scenarios in order.
func (c *Catalogue) List() []Scenario {
	return append([]Scenario(nil), c.list...)
}

// file is the on-disk layout.
type file struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Parse reads scenarios from YAML.
func Parse(data []byte) ([]Scenario, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("scenario: parse: %w", err)
	}
	for _, s := range f.Scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Scenarios, nil
}

// LoadFile returns the built-in catalogue extended with the scenarios in
// path.
func LoadFile(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewCatalogue(append(Builtin(), extra...)...)
}
