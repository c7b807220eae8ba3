// Package disease holds the static reference data shown next to detections.
package disease

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed diseases.yaml
var defaultCatalog []byte

type Severity string

const (
	SeverityHealthy Severity = "healthy"
	SeverityLow     Severity = "low"
	SeverityMedium  Severity = "medium"
	SeverityHigh    Severity = "high"
)

// Info describes one detector class.
type Info struct {
	Class       string   `yaml:"class" json:"class"`
	Label       string   `yaml:"label" json:"label"`
	English     string   `yaml:"en" json:"en"`
	Severity    Severity `yaml:"severity" json:"severity"`
	Icon        string   `yaml:"icon" json:"icon"`
	Description string   `yaml:"description" json:"description"`
	Symptoms    []string `yaml:"symptoms" json:"symptoms"`
	Treatment   []string `yaml:"treatment" json:"treatment"`
	Known       bool     `yaml:"-" json:"known"`
}

// Catalog maps detector class names to Info. Lookup is total.
type Catalog struct {
	entries []Info
	byKey   map[string]int
}

// Default parses the embedded catalog. It panics on a malformed file since
// the file ships with the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var entries []Info
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse disease catalog: %w", err)
	}

	c := &Catalog{byKey: make(map[string]int, len(entries))}
	for _, e := range entries {
		if e.Class == "" {
			return nil, fmt.Errorf("disease catalog entry without class")
		}
		key := normalize(e.Class)
		if _, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("duplicate disease class %q", e.Class)
		}
		switch e.Severity {
		case SeverityHealthy, SeverityLow, SeverityMedium, SeverityHigh:
		default:
			return nil, fmt.Errorf("class %q: unknown severity %q", e.Class, e.Severity)
		}
		if e.Label == "" {
			e.Label = e.Class
		}
		if e.English == "" {
			e.English = e.Label
		}
		e.Known = true
		c.byKey[key] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Lookup returns the entry for class, or a neutral entry labelled with the
// class name itself when the detector reports something unknown.
func (c *Catalog) Lookup(class string) Info {
	if i, ok := c.byKey[normalize(class)]; ok {
		return c.entries[i]
	}
	return Info{
		Class:       class,
		Label:       class,
		English:     class,
		Severity:    SeverityMedium,
		Icon:        "❓",
		Description: "No reference information is available for this class.",
	}
}

// Has reports whether class is a catalogued class.
func (c *Catalog) Has(class string) bool {
	_, ok := c.byKey[normalize(class)]
	return ok
}

// All returns the entries in file order.
func (c *Catalog) All() []Info {
	out := make([]Info, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

// normalize makes "leaf_mold", "Leaf Mold" and "leaf mold " the same key.
func normalize(class string) string {
	s := strings.ToLower(strings.TrimSpace(class))
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}
