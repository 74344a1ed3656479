// Package refdata loads the static reference tables the engine consults:
// the origin taxonomy and the state-priority table.
package refdata

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/icp-resolver/internal/config"
	"github.com/sells-group/icp-resolver/internal/model"
	"github.com/sells-group/icp-resolver/internal/normalize"
)

//go:embed defaults.yaml
var defaultTables []byte

// Origin is one known source network or registry.
type Origin struct {
	Name    string                  `yaml:"name"`
	Kind    model.CertificationKind `yaml:"kind"`
	Aliases []string                `yaml:"aliases,omitempty"`
}

// StatePriority is the priority and ITC urgency labels of one state.
type StatePriority struct {
	Priority   string `yaml:"priority"`
	ITCUrgency string `yaml:"itc_urgency"`
}

// Tables holds the loaded reference data.
type Tables struct {
	Origins []Origin                 `yaml:"origins"`
	States  map[string]StatePriority `yaml:"states"`

	byAlias map[string]Origin
}

// Default returns the built-in tables.
func Default() (*Tables, error) {
	return parse(defaultTables, "defaults")
}

// Load returns the built-in tables, replacing each section with the file
// configured for it.
func Load(cfg config.RefdataConfig) (*Tables, error) {
	t, err := Default()
	if err != nil {
		return nil, err
	}

	if cfg.OriginsPath != "" {
		o, err := LoadFile(cfg.OriginsPath)
		if err != nil {
			return nil, err
		}
		t.Origins = o.Origins
	}
	if cfg.StatePriorityPath != "" {
		s, err := LoadFile(cfg.StatePriorityPath)
		if err != nil {
			return nil, err
		}
		t.States = s.States
	}

	t.index()
	return t, nil
}

// LoadFile reads a tables file from a YAML file.
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: read tables %s", path)
	}
	return parse(data, path)
}

func parse(data []byte, name string) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrapf(err, "refdata: parse tables %s", name)
	}

	for i, o := range t.Origins {
		if strings.TrimSpace(o.Name) == "" {
			return nil, eris.Errorf("refdata: %s: origin %d has no name", name, i)
		}
		switch o.Kind {
		case "":
			t.Origins[i].Kind = model.KindDirectory
		case model.KindDirectory, model.KindLicense:
		default:
			return nil, eris.Errorf("refdata: %s: origin %q has unknown kind %q", name, o.Name, o.Kind)
		}
	}

	// State keys are normalized so "new jersey" and "nj" both work.
	states := make(map[string]StatePriority, len(t.States))
	for k, v := range t.States {
		v.Priority = strings.ToUpper(strings.TrimSpace(v.Priority))
		v.ITCUrgency = strings.ToUpper(strings.TrimSpace(v.ITCUrgency))
		states[normalize.State(k)] = v
	}
	t.States = states

	t.index()
	return &t, nil
}

func (t *Tables) index() {
	t.byAlias = make(map[string]Origin)
	for _, o := range t.Origins {
		t.byAlias[aliasKey(o.Name)] = o
		for _, a := range o.Aliases {
			t.byAlias[aliasKey(a)] = o
		}
	}
}

func aliasKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Origin resolves a raw origin string to a known origin by name or alias,
// case-insensitively.
func (t *Tables) Origin(raw string) (Origin, bool) {
	o, ok := t.byAlias[aliasKey(raw)]
	return o, ok
}

// CanonicalOrigin returns the known name for raw, or raw trimmed when the
// origin is unknown.
func (t *Tables) CanonicalOrigin(raw string) string {
	if o, ok := t.Origin(raw); ok {
		return o.Name
	}
	return strings.TrimSpace(raw)
}

// IsLicenseRegistry reports whether raw names a known license registry.
func (t *Tables) IsLicenseRegistry(raw string) bool {
	o, ok := t.Origin(raw)
	return ok && o.Kind == model.KindLicense
}

// State returns the priority entry for a state in any accepted spelling.
func (t *Tables) State(raw string) (StatePriority, bool) {
	sp, ok := t.States[normalize.State(raw)]
	return sp, ok
}

// StateCodes returns the state codes present in the table, sorted.
func (t *Tables) StateCodes() []string {
	out := make([]string, 0, len(t.States))
	for k := range t.States {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
