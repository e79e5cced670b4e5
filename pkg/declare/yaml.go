package declare

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type yamlFile struct {
	Engine *yamlEngine           `yaml:"engine"`
	States map[string]*yamlState `yaml:"states"`
}

type yamlEngine struct {
	MaxDepth           int `yaml:"max_depth"`
	ReconcileMemoLimit int `yaml:"reconcile_memo_limit"`
}

type yamlState struct {
	Lists   []string               `yaml:"lists"`
	Data    map[string]any         `yaml:"data"`
	Getters map[string]yamlGetter  `yaml:"getters"`
	Setters map[string]yamlSetter  `yaml:"setters"`
	Depends map[string]yamlDepends `yaml:"depends"`
}

type yamlGetter struct {
	Expr   string `yaml:"expr"`
	Engine string `yaml:"engine"`
}

type yamlSetter struct {
	Expr   string `yaml:"expr"`
	Engine string `yaml:"engine"`
	Target string `yaml:"target"`
}

// yamlDepends accepts either a list of sources or a mapping with `on`.
type yamlDepends []string

func (d *yamlDepends) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var on []string
		if err := node.Decode(&on); err != nil {
			return err
		}
		*d = on
		return nil
	}
	var block struct {
		On []string `yaml:"on"`
	}
	if err := node.Decode(&block); err != nil {
		return err
	}
	*d = block.On
	return nil
}

// LoadYAML parses one YAML declaration file.
func LoadYAML(path string) (*Model, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML file %s: %w", path, err)
	}
	return ParseYAML(src, path)
}

// ParseYAML parses YAML source held in memory. filename is used in error
// messages only.
func ParseYAML(src []byte, filename string) (*Model, error) {
	var file yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode YAML file %s: %w", filename, err)
	}

	model := &Model{}
	if file.Engine != nil {
		model.Engine = EngineSettings{
			MaxDepth:           file.Engine.MaxDepth,
			ReconcileMemoLimit: file.Engine.ReconcileMemoLimit,
		}
	}
	for _, name := range sortedKeys(file.States) {
		st := file.States[name]
		if st == nil {
			st = &yamlState{}
		}
		decl := &StateDecl{Name: name, Lists: st.Lists, Data: st.Data}
		for _, path := range sortedKeys(st.Getters) {
			g := st.Getters[path]
			decl.Getters = append(decl.Getters, GetterDecl{Path: path, Engine: g.Engine, Expr: g.Expr})
		}
		for _, path := range sortedKeys(st.Setters) {
			s := st.Setters[path]
			decl.Setters = append(decl.Setters, SetterDecl{Path: path, Engine: s.Engine, Expr: s.Expr, Target: s.Target})
		}
		for _, path := range sortedKeys(st.Depends) {
			decl.Depends = append(decl.Depends, DependsDecl{Path: path, On: st.Depends[path]})
		}
		model.States = append(model.States, decl)
	}
	return model, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
