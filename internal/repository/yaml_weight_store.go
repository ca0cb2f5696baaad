package repository

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
	"FusionTrader/pkg/config"
	"FusionTrader/pkg/util"
)

const weightsKey = "strategy_weights"

// YAMLWeightStore persists weights in the config file itself. Save edits only
// the strategy_weights node, so comments and other keys survive a rewrite.
type YAMLWeightStore struct {
	path string
}

func NewYAMLWeightStore(path string) *YAMLWeightStore {
	return &YAMLWeightStore{path: path}
}

type weightsDoc struct {
	Weights map[string]float64 `yaml:"strategy_weights"`
}

func (s *YAMLWeightStore) Load(context.Context) (models.WeightSet, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var d weightsDoc
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := config.ValidateWeights(d.Weights); err != nil {
		return nil, fmt.Errorf("strategy_weights: %w", err)
	}
	return models.WeightSet(d.Weights), nil
}

func (s *YAMLWeightStore) Save(_ context.Context, ws models.WeightSet) error {
	if err := config.ValidateWeights(ws); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config %s is not a mapping", s.path)
	}
	setMappingValue(doc.Content[0], weightsKey, weightsNode(ws))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	var check weightsDoc
	if err := yaml.Unmarshal(buf.Bytes(), &check); err != nil {
		return fmt.Errorf("rewritten config invalid: %w", err)
	}
	if err := config.ValidateWeights(check.Weights); err != nil {
		return fmt.Errorf("rewritten config invalid: %w", err)
	}
	return util.WriteFileAtomic(s.path, buf.Bytes(), info.Mode().Perm())
}

func weightsNode(ws models.WeightSet) *yaml.Node {
	names := make([]string, 0, len(ws))
	for k := range ws {
		names = append(names, k)
	}
	rank := func(name string) int {
		for i, k := range config.KnownAnalyzers {
			if k == name {
				return i
			}
		}
		return len(config.KnownAnalyzers)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := rank(names[i]), rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})

	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, name := range names {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: formatWeight(ws[name])},
		)
	}
	return n
}

// formatWeight renders w as a plain YAML float, keeping a decimal point on
// whole numbers so the file reads 1.0 rather than 1.
func formatWeight(w float64) string {
	v := strconv.FormatFloat(w, 'f', -1, 64)
	if !strings.ContainsAny(v, ".eE") {
		v += ".0"
	}
	return v
}

// setMappingValue replaces the value under key, keeping the key node and its
// comments, or appends the pair when key is absent.
func setMappingValue(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			old := m.Content[i+1]
			value.LineComment = old.LineComment
			value.FootComment = old.FootComment
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
}

var _ domrepo.WeightStore = (*YAMLWeightStore)(nil)
