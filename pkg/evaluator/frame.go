package evaluator

import "strings"

// FrameKind distinguishes the frame variants.
type FrameKind int

const (
	FramePlain FrameKind = iota
	FrameClosure
	FrameNative
	FrameShadow
)

func (k FrameKind) String() string {
	switch k {
	case FrameClosure:
		return "closure"
	case FrameNative:
		return "native"
	case FrameShadow:
		return "shadow"
	}
	return "plain"
}

// EllipsisArg is one argument collected by a '...' formal.
type EllipsisArg struct {
	Name  string
	Value Value
	ByRef bool
}

// Frame is a lexical scope. Names beginning with '*' are evaluator
// temporaries and live in a separate transient namespace.
//
// A shadow frame keeps only transient and injected names; every permanent
// operation is delegated to its parent.
type Frame struct {
	Name string
	Kind FrameKind
	up   *Frame

	vars     map[string]Value
	temps    map[string]Value
	injected map[string]Value // shadow frames only

	ellipsis []EllipsisArg // closure and native frames
	hasDots  bool          // the invoked function has a '...' formal
	params   []Param       // native frames: names of args
	args     []Value       // native frames: positional arguments

	// cached continuations; zero when unset
	begin   ContID
	escape  ContID
	current ContID
}

// NewFrame creates a plain frame with an optional parent.
func NewFrame(name string, up *Frame) *Frame {
	return &Frame{Name: name, Kind: FramePlain, up: up, vars: make(map[string]Value)}
}

// NewShadowFrame creates a shadow frame over up.
func NewShadowFrame(name string, up *Frame) *Frame {
	return &Frame{Name: name, Kind: FrameShadow, up: up}
}

func newClosureFrame(name string, up *Frame) *Frame {
	return &Frame{Name: name, Kind: FrameClosure, up: up, vars: make(map[string]Value)}
}

func newNativeFrame(b *Builtin, up *Frame) *Frame {
	return &Frame{
		Name:    b.Name,
		Kind:    FrameNative,
		up:      up,
		params:  b.Params,
		args:    make([]Value, len(b.Params)),
		hasDots: b.variadic(),
	}
}

// Up returns the parent frame.
func (f *Frame) Up() *Frame { return f.up }

// IsTransient reports whether name belongs to the transient namespace.
func IsTransient(name string) bool {
	return strings.HasPrefix(name, "*")
}

// TrueFrame skips shadow frames upward.
func (f *Frame) TrueFrame() *Frame {
	for f != nil && f.Kind == FrameShadow {
		f = f.up
	}
	return f
}

// Root returns the outermost frame.
func (f *Frame) Root() *Frame {
	for f.up != nil {
		f = f.up
	}
	return f
}

// lookupLocal searches only f's own namespaces.
func (f *Frame) lookupLocal(name string) (Value, bool) {
	if IsTransient(name) {
		v, ok := f.temps[name]
		return v, ok
	}
	switch f.Kind {
	case FrameShadow:
		v, ok := f.injected[name]
		return v, ok
	case FrameNative:
		for i, p := range f.params {
			if p.Name == name && f.args[i] != nil {
				return f.args[i], true
			}
		}
	}
	v, ok := f.vars[name]
	return v, ok
}

// Find looks up name in f and its ancestors.
func (f *Frame) Find(name string) (Value, bool) {
	for fr := f; fr != nil; fr = fr.up {
		if v, ok := fr.lookupLocal(name); ok {
			return v, true
		}
	}
	return nil, false
}

// FindLocal looks up name without ascending past the nearest true frame.
func (f *Frame) FindLocal(name string) (Value, bool) {
	if v, ok := f.lookupLocal(name); ok {
		return v, true
	}
	if f.Kind == FrameShadow && !IsTransient(name) {
		if t := f.TrueFrame(); t != nil {
			return t.lookupLocal(name)
		}
	}
	return nil, false
}

// FindFunc looks up name in funcall mode: bindings that are not callable
// are skipped, so a function and a value of the same name can coexist.
func (f *Frame) FindFunc(name string) (Value, bool) {
	for fr := f; fr != nil; fr = fr.up {
		v, ok := fr.lookupLocal(name)
		if !ok {
			continue
		}
		if fut, isFut := v.(*Future); isFut {
			if r, done := fut.Result(); done {
				v = r
			}
		}
		switch v.(type) {
		case *Closure, *Builtin:
			return v, true
		}
	}
	return nil, false
}

// Add binds name in f, replacing any previous binding, and returns the
// frame that received the binding.
func (f *Frame) Add(name string, v Value) *Frame {
	if IsTransient(name) {
		if f.temps == nil {
			f.temps = make(map[string]Value)
		}
		f.temps[name] = v
		return f
	}
	switch f.Kind {
	case FrameShadow:
		return f.TrueFrame().Add(name, v)
	case FrameNative:
		for i, p := range f.params {
			if p.Name == name {
				f.args[i] = v
				return f
			}
		}
	}
	if f.vars == nil {
		f.vars = make(map[string]Value)
	}
	f.vars[name] = v
	return f
}

// AddSpecial implements '<<-': starting at the parent of the nearest true
// frame, rebind the first frame that already binds name; otherwise create
// the binding at the root.
func (f *Frame) AddSpecial(name string, v Value) *Frame {
	start := f.TrueFrame()
	if start == nil || start.up == nil {
		return start.Add(name, v)
	}
	for fr := start.up; fr != nil; fr = fr.up {
		if fr.Kind == FrameShadow {
			continue
		}
		if _, ok := fr.lookupLocal(name); ok {
			return fr.Add(name, v)
		}
	}
	return start.Root().Add(name, v)
}

// Remove deletes a local binding, reporting whether one existed.
func (f *Frame) Remove(name string) bool {
	if IsTransient(name) {
		if _, ok := f.temps[name]; ok {
			delete(f.temps, name)
			return true
		}
		return false
	}
	t := f.TrueFrame()
	if t == nil {
		return false
	}
	if t.Kind == FrameNative {
		for i, p := range t.params {
			if p.Name == name && t.args[i] != nil {
				t.args[i] = nil
				return true
			}
		}
	}
	if _, ok := t.vars[name]; ok {
		delete(t.vars, name)
		return true
	}
	return false
}

// RemoveSpecial deletes the nearest binding of name above the true frame.
func (f *Frame) RemoveSpecial(name string) bool {
	t := f.TrueFrame()
	if t == nil {
		return false
	}
	for fr := t.up; fr != nil; fr = fr.up {
		if fr.Kind == FrameShadow {
			continue
		}
		if fr.Remove(name) {
			return true
		}
	}
	return false
}

// Inject binds a request-scoped variable in a shadow frame. On other
// frames it is an ordinary Add.
func (f *Frame) Inject(name string, v Value) {
	if f.Kind != FrameShadow {
		f.Add(name, v)
		return
	}
	if f.injected == nil {
		f.injected = make(map[string]Value)
	}
	f.injected[name] = v
}

// Names returns the permanent names bound locally, in no particular order.
func (f *Frame) Names() []string {
	t := f.TrueFrame()
	if t == nil {
		return nil
	}
	var names []string
	for i, p := range t.params {
		if t.args[i] != nil {
			names = append(names, p.Name)
		}
	}
	for name := range t.vars {
		names = append(names, name)
	}
	return names
}

// Ellipsis returns the '...' entries of the nearest invocation whose
// function declares them.
func (f *Frame) Ellipsis() ([]EllipsisArg, bool) {
	for fr := f; fr != nil; fr = fr.up {
		if fr.hasDots {
			return fr.ellipsis, true
		}
	}
	return nil, false
}

// dropTemps removes the transient bindings whose names start with prefix.
func (f *Frame) dropTemps(prefix string) {
	for name := range f.temps {
		if strings.HasPrefix(name, prefix) {
			delete(f.temps, name)
		}
	}
}

// clear drops the cached continuations.
func (f *Frame) clear() {
	f.begin = ContID{}
	f.escape = ContID{}
	f.current = ContID{}
}
