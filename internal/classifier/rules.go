package classifier

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/arvinsingh/fictech-harvester/internal/model"
)

// TypeRule scores one tech type. Keywords earn Weight points per match,
// context terms earn two points per match, and a type that matches both a
// keyword and a context term earns a three-point bonus.
type TypeRule struct {
	Type     model.TechType `yaml:"type"`
	Weight   float64        `yaml:"weight"`
	Keywords []string       `yaml:"keywords"`
	Context  []string       `yaml:"context"`
}

// ExclusionRule is a weighted regex marking non-technology content
// (biographies, plot summaries, list pages).
type ExclusionRule struct {
	Name    string  `yaml:"name"`
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
}

// RuleSet is the complete, immutable rule configuration for a Classifier.
// It is loaded once at startup and never mutated afterwards.
type RuleSet struct {
	Types      []TypeRule      `yaml:"types"`
	Exclusions []ExclusionRule `yaml:"exclusions"`
}

// DefaultRules returns the built-in rule tables.
func DefaultRules() RuleSet {
	return RuleSet{
		Types: []TypeRule{
			{
				Type:   model.TechTypeWeapon,
				Weight: 3,
				Keywords: []string{
					"weapon", "gun", "rifle", "blaster", "phaser", "cannon", "sword",
					"blade", "bomb", "missile", "torpedo", "laser", "plasma",
					"disruptor", "armament", "firearm",
				},
				Context: []string{
					"fires", "shoots", "armed", "combat", "warfare", "damage",
					"destructive", "explosive", "penetrate", "kill",
				},
			},
			{
				Type:   model.TechTypeVehicle,
				Weight: 3,
				Keywords: []string{
					"ship", "vessel", "craft", "fighter", "cruiser", "transport",
					"shuttle", "carrier", "destroyer", "frigate", "corvette",
					"dreadnought", "starship", "spacecraft",
				},
				Context: []string{
					"travels", "flies", "navigates", "crew", "passengers", "pilot",
					"engine", "hull", "bridge", "propulsion",
				},
			},
			{
				Type:   model.TechTypeDevice,
				Weight: 2,
				Keywords: []string{
					"device", "gadget", "tool", "scanner", "communicator", "computer",
					"console", "terminal", "apparatus", "instrument", "detector",
					"analyzer",
				},
				Context: []string{
					"operates", "functions", "displays", "processes", "controls",
					"interface", "screen", "data", "information",
				},
			},
			{
				Type:   model.TechTypeRobot,
				Weight: 3,
				Keywords: []string{
					"droid", "robot", "android", "cyborg", "automaton", "mech",
					"mecha", "synthetic",
				},
				Context: []string{
					"autonomous", "programmed", "intelligence", "sentient",
					"mechanical", "artificial",
				},
			},
			{
				Type:   model.TechTypeSystem,
				Weight: 2,
				Keywords: []string{
					"system", "technology", "drive", "reactor", "generator",
					"shield", "defense", "network", "grid",
				},
				Context: []string{
					"powered", "generates", "mechanism", "process", "function",
					"capability",
				},
			},
			{
				Type:   model.TechTypeEquipment,
				Weight: 2,
				Keywords: []string{
					"armor", "suit", "equipment", "gear", "machinery", "hardware",
					"component",
				},
				Context: []string{
					"worn", "equipped", "protective", "enhanced", "designed",
					"constructed",
				},
			},
		},
		Exclusions: []ExclusionRule{
			{Name: "list_page", Pattern: `\b(list|index|timeline|chronology|history) of\b`, Weight: 3},
			{Name: "person_pronoun", Pattern: `\b(he|she|they) (is|was|were|are)\b`, Weight: 3},
			{Name: "person_life", Pattern: `\b(born|died|birth|death)\b`, Weight: 3},
			{Name: "person_role", Pattern: `\b(actor|actress|person|individual)\b`, Weight: 3},
			{Name: "person_portrayal", Pattern: `\b(portrayed|played|voiced) by\b`, Weight: 3},
			{Name: "person_biography", Pattern: `\b(biography|biographical)\b`, Weight: 3},
			{Name: "plot_medium", Pattern: `\bin the (story|plot|episode|film|movie|book|novel|comic|television)\b`, Weight: 1},
			{Name: "plot_appearance", Pattern: `\b(appears|featured|introduced) in\b`, Weight: 1},
			{Name: "plot_narrative", Pattern: `\b(storyline|narrative)\b`, Weight: 1},
		},
	}
}

// LoadRules reads a RuleSet from a YAML file. An empty path returns the
// built-in defaults.
func LoadRules(path string) (RuleSet, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, eris.Wrapf(err, "classifier: read rules file %s", path)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, eris.Wrapf(err, "classifier: parse rules file %s", path)
	}
	if len(rs.Types) == 0 {
		return RuleSet{}, eris.Errorf("classifier: rules file %s defines no type rules", path)
	}
	return rs, nil
}
