package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/uberbrodt/beamgo/beam"
)

// Factory builds the start function for a child of a given kind. args is the
// child's raw args node, which may be zero.
type Factory func(id string, args yaml.Node) (StartFunSpec, error)

// Factories maps the kind names used in tree files to [Factory] functions.
type Factories struct {
	mx sync.RWMutex
	m  map[string]Factory
}

func NewFactories() *Factories {
	return &Factories{m: make(map[string]Factory)}
}

// Register panics if kind is already registered.
func (f *Factories) Register(kind string, factory Factory) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if _, ok := f.m[kind]; ok {
		panic(fmt.Sprintf("supervisor: factory %q registered twice", kind))
	}
	f.m[kind] = factory
}

func (f *Factories) get(kind string) (Factory, bool) {
	f.mx.RLock()
	defer f.mx.RUnlock()
	factory, ok := f.m[kind]
	return factory, ok
}

// ErrInvalidTree is wrapped by every error [LoadTree] returns for a tree it
// could read but not accept.
var ErrInvalidTree = errors.New("invalid supervisor tree")

// Tree is a loaded tree file, ready for [Tree.StartLink].
type Tree struct {
	Flags    SupFlagsS
	Children []ChildSpec
}

func (t Tree) Init(self beam.PID, args any) InitResult {
	return InitResult{SupFlags: t.Flags, ChildSpecs: t.Children}
}

func (t Tree) StartLink(self beam.PID, opts ...LinkOpts) (beam.PID, error) {
	return StartLink(self, t, nil, opts...)
}

type treeFile struct {
	Strategy  string      `yaml:"strategy"`
	Intensity *int        `yaml:"intensity"`
	Period    *int        `yaml:"period"`
	Children  []childFile `yaml:"children"`
}

type childFile struct {
	ID       string         `yaml:"id"`
	Kind     string         `yaml:"kind"`
	Restart  string         `yaml:"restart"`
	Type     string         `yaml:"type"`
	Shutdown *shutdownValue `yaml:"shutdown"`
	Args     yaml.Node      `yaml:"args"`
	// a nested supervisor. Mutually exclusive with Kind.
	Supervisor *treeFile `yaml:"supervisor"`
}

// shutdownValue is a number of milliseconds, brutal_kill or infinity.
type shutdownValue struct {
	opt ShutdownOpt
}

func (s *shutdownValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Value {
	case "brutal_kill":
		s.opt = ShutdownOpt{BrutalKill: true}
		return nil
	case "infinity":
		s.opt = ShutdownOpt{Infinity: true}
		return nil
	}
	ms, err := strconv.Atoi(node.Value)
	if err != nil || ms < 0 {
		return fmt.Errorf("line %d: shutdown must be milliseconds, brutal_kill or infinity, got %q", node.Line, node.Value)
	}
	s.opt = ShutdownOpt{Timeout: ms}
	return nil
}

// LoadTreeFile reads a tree from path. See [LoadTree].
func LoadTreeFile(path string, factories *Factories) (Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tree{}, fmt.Errorf("failed to open supervisor tree %s: %w", path, err)
	}
	defer f.Close()
	return LoadTree(f, factories)
}

// LoadTree parses a YAML supervisor tree:
//
//	strategy: rest_for_one   # one_for_one | one_for_all | rest_for_one
//	intensity: 3
//	period: 10
//	children:
//	  - id: counter
//	    kind: counter        # looked up in factories
//	    restart: permanent   # permanent | transient | temporary
//	    type: worker         # worker | supervisor
//	    shutdown: 5000       # milliseconds | brutal_kill | infinity
//	    args: {start: 10}    # passed to the factory
//	  - id: nested
//	    supervisor:          # a child supervisor with its own flags and children
//	      strategy: one_for_all
//	      children: [...]
//
// Omitted fields take the defaults of [NewSupFlags] and [NewChildSpec].
// Unknown strategies, restart types, child types or kinds and duplicate ids
// are errors wrapping [ErrInvalidTree].
func LoadTree(r io.Reader, factories *Factories) (Tree, error) {
	var tf treeFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil {
		if errors.Is(err, io.EOF) {
			return Tree{}, fmt.Errorf("%w: empty document", ErrInvalidTree)
		}
		return Tree{}, fmt.Errorf("%w: %w", ErrInvalidTree, err)
	}
	return tf.build("", factories)
}

func (tf treeFile) build(path string, factories *Factories) (Tree, error) {
	flags := NewSupFlags()
	if tf.Strategy != "" {
		flags.Strategy = Strategy(tf.Strategy)
	}
	if tf.Intensity != nil {
		flags.Intensity = *tf.Intensity
	}
	if tf.Period != nil {
		flags.Period = *tf.Period
	}
	if err := flags.validate(); err != nil {
		return Tree{}, treeErr(path, err)
	}

	specs := make([]ChildSpec, 0, len(tf.Children))
	for i, cf := range tf.Children {
		spec, err := cf.build(fmt.Sprintf("%schildren[%d]", path, i), factories)
		if err != nil {
			return Tree{}, err
		}
		specs = append(specs, spec)
	}
	if err := checkDups(specs); err != nil {
		return Tree{}, treeErr(path, err)
	}
	return Tree{Flags: flags, Children: specs}, nil
}

func (cf childFile) build(path string, factories *Factories) (ChildSpec, error) {
	if cf.ID == "" {
		return ChildSpec{}, treeErr(path, errors.New("child id is required"))
	}
	path = fmt.Sprintf("%s(%s)", path, cf.ID)

	var opts []ChildSpecOpt
	var start StartFunSpec

	switch {
	case cf.Supervisor != nil && cf.Kind != "":
		return ChildSpec{}, treeErr(path, errors.New("a child has either kind or supervisor, not both"))
	case cf.Supervisor != nil:
		sub, err := cf.Supervisor.build(path+".", factories)
		if err != nil {
			return ChildSpec{}, err
		}
		start = func(sup beam.PID) (beam.PID, error) {
			return sub.StartLink(sup)
		}
		opts = append(opts, SetChildType(SupervisorChild), SetShutdown(ShutdownOpt{Infinity: true}))
	default:
		factory, ok := factories.get(cf.Kind)
		if !ok {
			return ChildSpec{}, treeErr(path, fmt.Errorf("unknown child kind %q", cf.Kind))
		}
		var err error
		start, err = factory(cf.ID, cf.Args)
		if err != nil {
			return ChildSpec{}, treeErr(path, err)
		}
	}

	switch r := Restart(cf.Restart); r {
	case "":
	case Permanent, Transient, Temporary:
		opts = append(opts, SetRestart(r))
	default:
		return ChildSpec{}, treeErr(path, fmt.Errorf("unknown restart type %q", cf.Restart))
	}

	switch t := ChildType(cf.Type); t {
	case "":
	case WorkerChild, SupervisorChild:
		opts = append(opts, SetChildType(t))
	default:
		return ChildSpec{}, treeErr(path, fmt.Errorf("unknown child type %q", cf.Type))
	}

	if cf.Shutdown != nil {
		opts = append(opts, SetShutdown(cf.Shutdown.opt))
	}

	return NewChildSpec(cf.ID, start, opts...), nil
}

func treeErr(path string, err error) error {
	if path == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTree, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrInvalidTree, path, err)
}
