package state

import (
	"fmt"

	"github.com/wcstack/statecore/pkg/address"
	"github.com/wcstack/statecore/pkg/listindex"
	"github.com/wcstack/statecore/pkg/pathinfo"
)

// Reader is the view a getter has of state. Paths resolve against the
// getter's own loop context: wildcards it shares with the getter path take
// the getter's indexes. A path may name another state as `path@state`.
type Reader interface {
	Get(path string) (any, error)
	// GetAll returns every value a path matches, expanding wildcards beyond
	// the shared loop context.
	GetAll(path string) ([]any, error)
	ListIndex() *listindex.ListIndex
	Indexes() []int
}

// Writer is the view a setter has of state.
type Writer interface {
	Reader
	Set(path string, value any) error
}

// proxy reads and writes on behalf of the getter or setter at addr. When
// track is set every read becomes a dynamic dependency of addr's path.
type proxy struct {
	engine *Engine
	inst   *instance
	addr   *address.StateAddress
	track  bool
}

func (e *Engine) runGetter(inst *instance, sa *address.StateAddress, g *getter) (any, error) {
	p := &proxy{engine: e, inst: inst, addr: sa, track: true}
	if g.fn != nil {
		return g.fn(p)
	}
	return g.program.Run(p, nil)
}

func (e *Engine) runSetter(inst *instance, sa *address.StateAddress, s *setter, value any) error {
	p := &proxy{engine: e, inst: inst, addr: sa}
	if s.fn != nil {
		return s.fn(p, value)
	}
	out, err := s.program.Run(p, map[string]any{"value": value})
	if err != nil {
		return err
	}
	return p.Set(s.target.Path, out)
}

func (p *proxy) ListIndex() *listindex.ListIndex { return p.addr.ListIndex() }

func (p *proxy) Indexes() []int {
	if li := p.addr.ListIndex(); li != nil {
		return li.Indexes()
	}
	return nil
}

// target parses path and returns the instance it lives in, along with the
// list index of the deepest wildcard it shares with the proxy's own path.
func (p *proxy) target(path string) (*instance, *pathinfo.PathInfo, *listindex.ListIndex, int, error) {
	targetPath, stateName := pathinfo.SplitTarget(path)
	pi, err := pathinfo.Parse(targetPath)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	inst := p.inst
	if stateName != "" && stateName != p.inst.name {
		other, err := p.engine.instance(stateName)
		if err != nil {
			return nil, nil, nil, 0, err
		}
		return other, pi, nil, 0, nil
	}

	shared := p.addr.PathInfo().SharedWildcardDepth(pi)
	if shared == 0 {
		return inst, pi, nil, 0, nil
	}
	li := p.addr.ListIndex()
	if li == nil || li.Length() < shared {
		return nil, nil, nil, 0, &pathinfo.PathError{Op: "state: read", Path: pi.Path, Err: ErrMissingListIndex}
	}
	return inst, pi, li.At(shared - 1), shared, nil
}

func (p *proxy) record(inst *instance, pi *pathinfo.PathInfo) error {
	if !p.track {
		return nil
	}
	if err := inst.graph.AddPath(pi.Path); err != nil {
		return err
	}
	dependent := p.addr.Path()
	if inst != p.inst {
		dependent += pathinfo.StateSeparator + p.inst.name
	}
	inst.graph.AddDynamic(pi.Path, dependent)
	return nil
}

func (p *proxy) Get(path string) (any, error) {
	inst, pi, li, shared, err := p.target(path)
	if err != nil {
		return nil, err
	}
	if pi.WildcardCount > shared {
		return nil, &pathinfo.PathError{
			Op:   "state: read",
			Path: pi.Path,
			Err:  fmt.Errorf("%w: %d shared with %s, use GetAll", ErrInsufficientIndexes, shared, p.addr.Path()),
		}
	}
	if err := p.record(inst, pi); err != nil {
		return nil, err
	}
	return p.engine.resolve(inst, p.engine.factory.Get(pi, li))
}

func (p *proxy) GetAll(path string) ([]any, error) {
	inst, pi, li, shared, err := p.target(path)
	if err != nil {
		return nil, err
	}
	if err := p.record(inst, pi); err != nil {
		return nil, err
	}
	// Membership of every expanded list is read too.
	for level := shared; level < pi.WildcardCount; level++ {
		if err := p.record(inst, pi.WildcardParentPathInfos[level]); err != nil {
			return nil, err
		}
	}
	addrs, err := p.engine.expand(inst, pi, li, shared)
	if err != nil {
		return nil, err
	}
	return p.engine.resolveAll(inst, addrs)
}

func (p *proxy) Set(path string, value any) error {
	inst, pi, li, shared, err := p.target(path)
	if err != nil {
		return err
	}
	if pi.WildcardCount > shared {
		return &pathinfo.PathError{
			Op:   "state: write",
			Path: pi.Path,
			Err:  fmt.Errorf("%w: %d shared with %s", ErrInsufficientIndexes, shared, p.addr.Path()),
		}
	}
	_, err = p.engine.write(inst, p.engine.factory.Get(pi, li), value)
	return err
}
