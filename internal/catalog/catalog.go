// Package catalog provides the static patient case catalog: a validated
// two-level lookup from module id to scenario id to scenario definition.
package catalog

import (
	"fmt"
	"sort"

	"github.com/emergensee/emergensee-server/internal/domain"
)

// Catalog is an immutable (module, scenario) → ScenarioDef lookup.
type Catalog struct {
	modules map[string]map[int]*domain.ScenarioDef
}

// New builds a catalog from the given definitions, validating each one.
// Validation failures are programming errors in the case data and abort the
// build rather than surfacing at session time.
func New(defs ...*domain.ScenarioDef) (*Catalog, error) {
	c := &Catalog{modules: make(map[string]map[int]*domain.ScenarioDef)}
	for _, def := range defs {
		if err := validate(def); err != nil {
			return nil, fmt.Errorf("scenario %s/%d: %w", def.ModuleID, def.ScenarioID, err)
		}
		scenarios, ok := c.modules[def.ModuleID]
		if !ok {
			scenarios = make(map[int]*domain.ScenarioDef)
			c.modules[def.ModuleID] = scenarios
		}
		if _, exists := scenarios[def.ScenarioID]; exists {
			return nil, fmt.Errorf("scenario %s/%d: duplicate definition", def.ModuleID, def.ScenarioID)
		}
		scenarios[def.ScenarioID] = def
	}
	return c, nil
}

func validate(def *domain.ScenarioDef) error {
	if def.ModuleID == "" {
		return fmt.Errorf("module id is empty")
	}
	if len(def.Stages) == 0 {
		return fmt.Errorf("no stages defined")
	}
	if len(def.Gates) != len(def.Stages) {
		return fmt.Errorf("have %d gates for %d stages", len(def.Gates), len(def.Stages))
	}
	for i, gate := range def.Gates {
		for _, name := range gate {
			if !def.HasFlag(name) {
				return fmt.Errorf("stage %d gate references undefined flag %q", i, name)
			}
		}
	}
	for _, f := range def.Flags {
		if f.Name == "" {
			return fmt.Errorf("flag with empty name")
		}
		if f.StageIndex < 0 || f.StageIndex >= len(def.Stages) {
			return fmt.Errorf("flag %q bound to stage %d of %d", f.Name, f.StageIndex, len(def.Stages))
		}
	}
	if def.TargetDuration <= 0 {
		return fmt.Errorf("target duration must be positive")
	}
	if def.Patient.Name == "" {
		return fmt.Errorf("patient name is empty")
	}
	return nil
}

// Lookup returns the scenario definition for the pair, or ErrUnknownCase.
func (c *Catalog) Lookup(moduleID string, scenarioID int) (*domain.ScenarioDef, error) {
	scenarios, ok := c.modules[moduleID]
	if !ok {
		return nil, fmt.Errorf("%w: module %q", domain.ErrUnknownCase, moduleID)
	}
	def, ok := scenarios[scenarioID]
	if !ok {
		return nil, fmt.Errorf("%w: module %q scenario %d", domain.ErrUnknownCase, moduleID, scenarioID)
	}
	return def, nil
}

// ModuleSummary lists one scenario for the catalog endpoint.
type ModuleSummary struct {
	ModuleID    string `json:"module_id"`
	ScenarioID  int    `json:"scenario_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Stages      int    `json:"stages"`
	TargetMins  int    `json:"target_minutes"`
}

// Summaries returns a stable listing of every scenario in the catalog.
func (c *Catalog) Summaries() []ModuleSummary {
	var out []ModuleSummary
	for moduleID, scenarios := range c.modules {
		for scenarioID, def := range scenarios {
			out = append(out, ModuleSummary{
				ModuleID:    moduleID,
				ScenarioID:  scenarioID,
				Title:       def.Title,
				Description: def.Description,
				Stages:      len(def.Stages),
				TargetMins:  int(def.TargetDuration.Minutes()),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModuleID != out[j].ModuleID {
			return out[i].ModuleID < out[j].ModuleID
		}
		return out[i].ScenarioID < out[j].ScenarioID
	})
	return out
}
