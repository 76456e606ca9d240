package resolve

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Fixed source priorities per field kind.
var (
	TypePriority       = Priority{"-Imported", "button_added", "value", "auto_calced"}
	UtilityPriority    = Priority{"-Imported", "button_added"}
	CompletionPriority = Priority{"value", "button_added", "-Imported", "multi_added"}
	BackOfficePriority = Priority{"button_added", "-Imported", "multi_added"}
	MRPriority         = Priority{"auto_calced", "value", "button_added"}
	ConnectionPriority = Priority{"value", "button_added"}
)

// Priorities bundles the source order used for every resolved attribute.
type Priorities struct {
	Type       Priority `yaml:"type"`
	Utility    Priority `yaml:"utility"`
	Completion Priority `yaml:"completion"`
	BackOffice Priority `yaml:"back_office"`
	MR         Priority `yaml:"mr"`
	Connection Priority `yaml:"connection"`
	PoleClass  Priority `yaml:"pole_class"`
	PoleHeight Priority `yaml:"pole_height"`
	PoleSpec   Priority `yaml:"pole_spec"`
	SCID       Priority `yaml:"scid"`
	AnchorSpec Priority `yaml:"anchor_spec"`
}

// DefaultPriorities returns the documented source orders.
func DefaultPriorities() Priorities {
	return Priorities{
		Type:       TypePriority,
		Utility:    UtilityPriority,
		Completion: CompletionPriority,
		BackOffice: BackOfficePriority,
		MR:         MRPriority,
		Connection: ConnectionPriority,
		PoleClass:  Priority{"-Imported", "button_added", "value"},
		PoleHeight: Priority{"-Imported", "button_added", "value"},
		PoleSpec:   Priority{"button_calced", "button_added", "value"},
		SCID:       Priority{"auto_button", "button_added", "value"},
		AnchorSpec: Priority{"button_added", "value", "-Imported"},
	}
}

// LoadPriorities reads a YAML override file. Lists omitted from the file keep
// their defaults. An empty path returns the defaults.
func LoadPriorities(path string) (Priorities, error) {
	p := DefaultPriorities()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "resolve: read priorities %s", path)
	}

	var override Priorities
	if err := yaml.Unmarshal(data, &override); err != nil {
		return p, eris.Wrapf(err, "resolve: parse priorities %s", path)
	}

	merge(&p.Type, override.Type)
	merge(&p.Utility, override.Utility)
	merge(&p.Completion, override.Completion)
	merge(&p.BackOffice, override.BackOffice)
	merge(&p.MR, override.MR)
	merge(&p.Connection, override.Connection)
	merge(&p.PoleClass, override.PoleClass)
	merge(&p.PoleHeight, override.PoleHeight)
	merge(&p.PoleSpec, override.PoleSpec)
	merge(&p.SCID, override.SCID)
	merge(&p.AnchorSpec, override.AnchorSpec)
	return p, nil
}

func merge(dst *Priority, src Priority) {
	if len(src) > 0 {
		*dst = src
	}
}
