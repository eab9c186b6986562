// Package corpus holds the catalog of legal analysis rules used by the rule assembler.
package corpus

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"caselens-backend/models"

	"gopkg.in/yaml.v3"
)

// AllPackages selects every package of the corpus
const AllPackages = "default"

//go:embed rules.yaml
var defaultRules []byte

var (
	ErrUnknownPackage = errors.New("unknown rule package")
	ErrEmptyCorpus    = errors.New("rule corpus is empty")
)

// Package groups the rules shipped for one practice area
type Package struct {
	ID    string                  `yaml:"id"`
	Name  string                  `yaml:"name"`
	Rules []models.RuleDefinition `yaml:"rules"`
}

// PackageInfo summarizes a package for listings
type PackageInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RuleCount int    `json:"rule_count"`
}

type corpusFile struct {
	Packages []Package `yaml:"packages"`
}

// Corpus is an immutable rule catalog. It is built once and shared across
// sessions without locking; callers only ever receive copies of its rules.
type Corpus struct {
	packages []Package
	index    map[string]int
}

// Parse decodes a YAML corpus
func Parse(data []byte) (*Corpus, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("corpus: %w", ErrEmptyCorpus)
	}
	var file corpusFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("corpus: decode: %w", err)
	}
	return build(file.Packages)
}

// LoadFile reads a YAML corpus from disk
func LoadFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("corpus: %s: %w", path, err)
	}
	return c, nil
}

// Default returns the corpus embedded in the binary
func Default() (*Corpus, error) {
	return Parse(defaultRules)
}

// DefaultYAML returns the raw embedded corpus
func DefaultYAML() []byte {
	return append([]byte(nil), defaultRules...)
}

// FromRules groups flat rule records (as stored in the database) into packages,
// keeping the order in which they were supplied.
func FromRules(rules []models.RuleDefinition) (*Corpus, error) {
	var packages []Package
	positions := make(map[string]int)
	for _, rule := range rules {
		pos, ok := positions[rule.PackageID]
		if !ok {
			pos = len(packages)
			positions[rule.PackageID] = pos
			packages = append(packages, Package{ID: rule.PackageID, Name: rule.PackageID})
		}
		packages[pos].Rules = append(packages[pos].Rules, rule.Clone())
	}
	return build(packages)
}

func build(packages []Package) (*Corpus, error) {
	c := &Corpus{index: make(map[string]int)}
	seen := make(map[string]bool)
	for _, pkg := range packages {
		if pkg.ID == "" {
			return nil, fmt.Errorf("corpus: package without id")
		}
		if _, dup := c.index[pkg.ID]; dup {
			return nil, fmt.Errorf("corpus: duplicate package %q", pkg.ID)
		}
		rules := make([]models.RuleDefinition, 0, len(pkg.Rules))
		for _, rule := range pkg.Rules {
			if err := validate(rule); err != nil {
				return nil, fmt.Errorf("corpus: package %s: %w", pkg.ID, err)
			}
			if seen[rule.ID] {
				return nil, fmt.Errorf("corpus: duplicate rule id %q", rule.ID)
			}
			seen[rule.ID] = true
			rule = rule.Clone()
			rule.PackageID = pkg.ID
			rules = append(rules, rule)
		}
		c.index[pkg.ID] = len(c.packages)
		c.packages = append(c.packages, Package{ID: pkg.ID, Name: pkg.Name, Rules: rules})
	}
	return c, nil
}

func validate(rule models.RuleDefinition) error {
	if rule.ID == "" {
		return errors.New("rule without id")
	}
	if rule.Name == "" {
		return fmt.Errorf("rule %s: missing name", rule.ID)
	}
	if rule.BaseWeight < 0 {
		return fmt.Errorf("rule %s: negative base weight", rule.ID)
	}
	switch rule.Category {
	case models.CategoryClaim, models.CategoryDefense, models.CategoryEvidence,
		models.CategoryProcedure, models.CategoryStrategy, models.CategoryRisk:
		return nil
	default:
		return fmt.Errorf("rule %s: unknown category %q", rule.ID, rule.Category)
	}
}

// Rules returns copies of the rules in a package, or of the whole corpus
// when packageID is empty or AllPackages.
func (c *Corpus) Rules(packageID string) ([]models.RuleDefinition, error) {
	if c == nil {
		return nil, ErrEmptyCorpus
	}
	if packageID == "" || packageID == AllPackages {
		return c.All(), nil
	}
	pos, ok := c.index[packageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, packageID)
	}
	return cloneAll(c.packages[pos].Rules), nil
}

// All returns copies of every rule in corpus order
func (c *Corpus) All() []models.RuleDefinition {
	var out []models.RuleDefinition
	for _, pkg := range c.packages {
		out = append(out, cloneAll(pkg.Rules)...)
	}
	return out
}

// Packages lists the packages in corpus order
func (c *Corpus) Packages() []PackageInfo {
	infos := make([]PackageInfo, 0, len(c.packages))
	for _, pkg := range c.packages {
		infos = append(infos, PackageInfo{ID: pkg.ID, Name: pkg.Name, RuleCount: len(pkg.Rules)})
	}
	return infos
}

func cloneAll(rules []models.RuleDefinition) []models.RuleDefinition {
	out := make([]models.RuleDefinition, len(rules))
	for i, rule := range rules {
		out[i] = rule.Clone()
	}
	return out
}
