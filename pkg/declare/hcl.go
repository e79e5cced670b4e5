package declare

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot is the set of top-level blocks a declaration file may hold.
type fileRoot struct {
	Engine *hclEngine  `hcl:"engine,block"`
	States []*hclState `hcl:"state,block"`
}

type hclEngine struct {
	MaxDepth           *int `hcl:"max_depth,optional"`
	ReconcileMemoLimit *int `hcl:"reconcile_memo_limit,optional"`
}

type hclState struct {
	Name    string         `hcl:"name,label"`
	Lists   []string       `hcl:"lists,optional"`
	Data    hcl.Expression `hcl:"data,optional"`
	Getters []*hclGetter   `hcl:"getter,block"`
	Setters []*hclSetter   `hcl:"setter,block"`
	Depends []*hclDepends  `hcl:"depends,block"`
}

type hclGetter struct {
	Path   string `hcl:"path,label"`
	Expr   string `hcl:"expr"`
	Engine string `hcl:"engine,optional"`
}

type hclSetter struct {
	Path   string `hcl:"path,label"`
	Expr   string `hcl:"expr"`
	Target string `hcl:"target"`
	Engine string `hcl:"engine,optional"`
}

type hclDepends struct {
	Path string   `hcl:"path,label"`
	On   []string `hcl:"on"`
}

// LoadHCL parses one HCL declaration file.
func LoadHCL(path string) (*Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return decodeHCL(path, file)
}

// ParseHCL parses HCL source held in memory. filename is used in
// diagnostics only.
func ParseHCL(src []byte, filename string) (*Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decodeHCL(filename, file)
}

func decodeHCL(filename string, file *hcl.File) (*Model, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	model := &Model{}
	if root.Engine != nil {
		if root.Engine.MaxDepth != nil {
			model.Engine.MaxDepth = *root.Engine.MaxDepth
		}
		if root.Engine.ReconcileMemoLimit != nil {
			model.Engine.ReconcileMemoLimit = *root.Engine.ReconcileMemoLimit
		}
	}
	for _, st := range root.States {
		decl, err := translateState(st)
		if err != nil {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, err)
		}
		model.States = append(model.States, decl)
	}
	return model, nil
}

func translateState(st *hclState) (*StateDecl, error) {
	decl := &StateDecl{Name: st.Name, Lists: st.Lists}
	if st.Data != nil {
		val, diags := st.Data.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("state %q data: %w", st.Name, diags)
		}
		data, err := ctyValueToInterface(val)
		if err != nil {
			return nil, fmt.Errorf("state %q data: %w", st.Name, err)
		}
		switch d := data.(type) {
		case nil:
		case map[string]any:
			decl.Data = d
		default:
			return nil, fmt.Errorf("state %q data must be an object, got %s", st.Name, val.Type().FriendlyName())
		}
	}
	for _, g := range st.Getters {
		decl.Getters = append(decl.Getters, GetterDecl{Path: g.Path, Engine: g.Engine, Expr: g.Expr})
	}
	for _, s := range st.Setters {
		decl.Setters = append(decl.Setters, SetterDecl{Path: s.Path, Engine: s.Engine, Expr: s.Expr, Target: s.Target})
	}
	for _, d := range st.Depends {
		decl.Depends = append(decl.Depends, DependsDecl{Path: d.Path, On: d.On})
	}
	return decl, nil
}

// ctyValueToInterface converts a cty.Value to plain Go values. Whole numbers
// become int, other numbers float64.
func ctyValueToInterface(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if ty.IsPrimitiveType() {
		switch ty {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			bf := val.AsBigFloat()
			if bf.IsInt() {
				if i, acc := bf.Int64(); acc == big.Exact {
					return int(i), nil
				}
			}
			f, _ := bf.Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", ty.FriendlyName())
		}
	}
	if ty.IsObjectType() || ty.IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			item, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = item
		}
		return out, nil
	}
	if ty.IsTupleType() || ty.IsListType() || ty.IsSetType() {
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			item, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}
