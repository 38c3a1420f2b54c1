// internal/selector/selector.go
package selector

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/suture/api/schemas"
)

//go:embed strategies.yaml
var strategiesYAML []byte

// Strategy is one repair strategy the engine can apply at a decision site.
type Strategy struct {
	ID          string         `yaml:"id" json:"id"`
	Engine      string         `yaml:"engine" json:"engine"`
	Action      schemas.Action `yaml:"action" json:"action"`
	Value       string         `yaml:"value,omitempty" json:"value,omitempty"`
	Returns     bool           `yaml:"returns,omitempty" json:"returns,omitempty"`
	Description string         `yaml:"description" json:"description"`
}

type catalogueFile struct {
	Strategies []Strategy `yaml:"strategies"`
}

var catalogue = mustLoadCatalogue(strategiesYAML)

func mustLoadCatalogue(data []byte) []Strategy {
	strategies, err := loadCatalogue(data)
	if err != nil {
		panic(fmt.Sprintf("load strategies.yaml: %v", err))
	}
	return strategies
}

func loadCatalogue(data []byte) ([]Strategy, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("no strategies defined")
	}
	seen := make(map[string]bool, len(file.Strategies))
	for _, s := range file.Strategies {
		if s.ID == "" || s.Engine == "" {
			return nil, fmt.Errorf("strategy %q is missing an id or engine name", s.ID)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("strategy %q is defined twice", s.ID)
		}
		seen[s.ID] = true
	}
	return file.Strategies, nil
}

// Catalogue returns every known strategy in sweep order.
func Catalogue() []Strategy {
	return append([]Strategy(nil), catalogue...)
}

// ReturnStrategies returns the strategies that return early from the enclosing
// method. They are the only ones applicable when repairing by try/catch.
func ReturnStrategies() []Strategy {
	var out []Strategy
	for _, s := range catalogue {
		if s.Returns {
			out = append(out, s)
		}
	}
	return out
}

// Lookup finds a strategy by catalogue id or engine name.
func Lookup(name string) (Strategy, bool) {
	for _, s := range catalogue {
		if s.ID == name || s.Engine == name {
			return s, true
		}
	}
	return Strategy{}, false
}

// EngineNames maps strategies to their engine command-line names.
func EngineNames(strategies []Strategy) []string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Engine
	}
	return names
}

// Kind names a selector variant.
type Kind string

const (
	KindDom         Kind = "dom"
	KindExploration Kind = "exploration"
	KindMono        Kind = "mono"
	KindGreedy      Kind = "greedy"
	KindRandom      Kind = "random"
)

// RepairStrategy is the overall repair approach, chosen independently of the
// selector.
type RepairStrategy string

const (
	RepairDefault  RepairStrategy = "default"
	RepairTryCatch RepairStrategy = "trycatch"
)

// ParseRepairStrategy accepts "default" and "trycatch", case-insensitively.
func ParseRepairStrategy(s string) (RepairStrategy, error) {
	switch rs := RepairStrategy(strings.ToLower(strings.TrimSpace(s))); rs {
	case RepairDefault, RepairTryCatch:
		return rs, nil
	case "":
		return RepairDefault, nil
	default:
		return "", fmt.Errorf("unknown repair strategy %q (expected default or trycatch)", s)
	}
}

// Selector is the decision policy handed to the engine. The set of variants is
// closed; use New to obtain one.
type Selector interface {
	// Kind names the variant.
	Kind() Kind
	// Strategies the engine may choose from at each decision site.
	Strategies() []Strategy
	// MultiPoint reports whether several decision sites may be resolved in one
	// attempt.
	MultiPoint() bool

	isSelector()
}

type base struct {
	strategies []Strategy
}

func (b base) Strategies() []Strategy { return append([]Strategy(nil), b.strategies...) }
func (base) MultiPoint() bool         { return true }
func (base) isSelector()              {}

// Dom sweeps every strategy once, in catalogue order, in a single engine call.
type Dom struct{ base }

// Exploration picks decisions by learned probability.
type Exploration struct{ base }

// Mono explores like Exploration but resolves a single decision point per attempt.
type Mono struct{ base }

// Greedy always takes the best-scoring decision seen so far.
type Greedy struct{ base }

// Random picks decisions uniformly.
type Random struct{ base }

func (*Dom) Kind() Kind         { return KindDom }
func (*Exploration) Kind() Kind { return KindExploration }
func (*Mono) Kind() Kind        { return KindMono }
func (*Mono) MultiPoint() bool  { return false }
func (*Greedy) Kind() Kind      { return KindGreedy }
func (*Random) Kind() Kind      { return KindRandom }

// New builds the selector named by kind. Under the try/catch repair strategy,
// exploration is restricted to the return strategies.
func New(kind string, repair RepairStrategy) (Selector, error) {
	all := base{strategies: Catalogue()}
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindDom:
		return &Dom{all}, nil
	case KindExploration:
		if repair == RepairTryCatch {
			return &Exploration{base{strategies: ReturnStrategies()}}, nil
		}
		return &Exploration{all}, nil
	case KindMono:
		return &Mono{all}, nil
	case KindGreedy:
		return &Greedy{all}, nil
	case KindRandom:
		return &Random{all}, nil
	default:
		return nil, fmt.Errorf("unknown selector %q (expected dom, exploration, mono, greedy or random)", kind)
	}
}
