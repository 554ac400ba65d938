// Package curriculum holds the static Year 7 topic table consumed by the
// prompt builder. The table is embedded at build time and read-only.
package curriculum

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed year7.yaml
var year7YAML []byte

// Scaffold is an ordered list of remediation steps for a recognised problem
// pattern.
type Scaffold struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Steps    []string `yaml:"steps"`
}

// Topic is one curriculum entry.
type Topic struct {
	ID             string     `yaml:"id"`
	Name           string     `yaml:"name"`
	Description    string     `yaml:"description"`
	Labels         []string   `yaml:"labels"`
	Subtopics      []string   `yaml:"subtopics"`
	Misconceptions []string   `yaml:"misconceptions"`
	Scaffolds      []Scaffold `yaml:"scaffolds"`
}

// Table is the full curriculum for one year level.
type Table struct {
	Curriculum string  `yaml:"curriculum"`
	YearLevel  int     `yaml:"yearLevel"`
	Topics     []Topic `yaml:"topics"`
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Default returns the embedded Year 7 table, decoded once.
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Parse(year7YAML)
	})
	return defaultTable, defaultErr
}

// Parse decodes a curriculum YAML document and validates it.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("curriculum parse: %w", err)
	}
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks ids and scaffold keys are present and unique.
func Validate(t *Table) error {
	if t == nil {
		return fmt.Errorf("curriculum must not be nil")
	}
	if len(t.Topics) == 0 {
		return fmt.Errorf("curriculum %q has no topics", t.Curriculum)
	}

	topicIDs := make(map[string]struct{}, len(t.Topics))
	scaffoldKeys := make(map[string]struct{})
	for i, topic := range t.Topics {
		if strings.TrimSpace(topic.ID) == "" {
			return fmt.Errorf("topics[%d]: id must not be empty", i)
		}
		if strings.TrimSpace(topic.Name) == "" {
			return fmt.Errorf("topics[%d] (%q): name must not be empty", i, topic.ID)
		}
		if _, dup := topicIDs[topic.ID]; dup {
			return fmt.Errorf("topics[%d]: duplicate id %q", i, topic.ID)
		}
		topicIDs[topic.ID] = struct{}{}

		for j, s := range topic.Scaffolds {
			if s.Key == "" {
				return fmt.Errorf("topics[%d].scaffolds[%d]: key must not be empty", i, j)
			}
			if len(s.Steps) == 0 {
				return fmt.Errorf("scaffold %q has no steps", s.Key)
			}
			if _, dup := scaffoldKeys[s.Key]; dup {
				return fmt.Errorf("duplicate scaffold key %q", s.Key)
			}
			scaffoldKeys[s.Key] = struct{}{}
		}
	}
	return nil
}

// Lookup finds a topic by id or by case-insensitive name.
func (t *Table) Lookup(idOrName string) (Topic, bool) {
	needle := strings.TrimSpace(idOrName)
	for _, topic := range t.Topics {
		if topic.ID == needle || strings.EqualFold(topic.Name, needle) {
			return topic, true
		}
	}
	return Topic{}, false
}

// ForLabel returns the topics mapped to a classifier label, in table order.
func (t *Table) ForLabel(label string) []Topic {
	var out []Topic
	for _, topic := range t.Topics {
		for _, l := range topic.Labels {
			if strings.EqualFold(l, label) {
				out = append(out, topic)
				break
			}
		}
	}
	return out
}
