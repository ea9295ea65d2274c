package amd

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strconv"
)

// Definition describes one module. It replaces the different call shapes
// of define with a single value.
type Definition struct {
	// ID is the explicit identifier. Empty for anonymous modules, which
	// take the identifier they were requested under.
	ID string

	// Deps lists dependency identifiers, including the pseudo-dependencies
	// "require", "exports", "module" and "config". A nil slice asks the
	// loader to infer them from the factory; an empty one declares none.
	Deps []string

	// Factory is a Go func called with the dependency values once they are
	// all available. It may return nothing, a value, an error, or a value
	// and an error.
	Factory any

	// Value is the module value when Factory is nil.
	Value any

	// Source is the Go source of Factory as a function literal. When set
	// and Deps is nil, dependencies are read from it: parameter names
	// must be pseudo-dependencies and every require("id") or
	// require.Get("id") call adds a dependency.
	Source string
}

var (
	requireType = reflect.TypeOf((*Require)(nil))
	exportsType = reflect.TypeOf(Exports(nil))
	moduleType  = reflect.TypeOf((*ModuleInfo)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// factory is a normalized, callable Definition.
type factory struct {
	fn    reflect.Value
	value any
}

func newFactory(def Definition) (*factory, error) {
	if def.Factory == nil {
		return &factory{value: def.Value}, nil
	}

	fn := reflect.ValueOf(def.Factory)
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: expected a func, got %T", ErrInvalidFactory, def.Factory)
	}
	t := fn.Type()
	switch t.NumOut() {
	case 0, 1:
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("%w: second result must be error, got %s", ErrInvalidFactory, t.Out(1))
		}
	default:
		return nil, fmt.Errorf("%w: too many results in %s", ErrInvalidFactory, t)
	}
	return &factory{fn: fn}, nil
}

func (f *factory) isFunc() bool {
	return f.fn.IsValid()
}

// call invokes the factory with positional arguments. Panics and returned
// errors become ErrFactoryFault.
func (f *factory) call(id string, args []any) (result any, err error) {
	if !f.isFunc() {
		return f.value, nil
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%w: %s: panic: %w", ErrFactoryFault, displayID(id), e)
				return
			}
			err = fmt.Errorf("%w: %s: panic: %v", ErrFactoryFault, displayID(id), r)
		}
	}()

	in, err := f.arguments(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFactoryFault, displayID(id), err)
	}

	out := f.fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if f.fn.Type().Out(0) == errorType {
			if e, _ := out[0].Interface().(error); e != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrFactoryFault, displayID(id), e)
			}
			return nil, nil
		}
		return out[0].Interface(), nil
	default:
		if e, _ := out[1].Interface().(error); e != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFactoryFault, displayID(id), e)
		}
		return out[0].Interface(), nil
	}
}

func (f *factory) arguments(args []any) ([]reflect.Value, error) {
	t := f.fn.Type()
	fixed := t.NumIn()
	if t.IsVariadic() {
		fixed--
	}

	in := make([]reflect.Value, 0, len(args))
	for i := 0; i < fixed; i++ {
		var arg any
		if i < len(args) {
			arg = args[i]
		}
		v, err := argValue(arg, t.In(i), i)
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}

	if t.IsVariadic() {
		elem := t.In(fixed).Elem()
		for i := fixed; i < len(args); i++ {
			v, err := argValue(args[i], elem, i)
			if err != nil {
				return nil, err
			}
			in = append(in, v)
		}
	}
	return in, nil
}

func argValue(arg any, to reflect.Type, index int) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(to), nil
	}
	v := reflect.ValueOf(arg)
	if !v.Type().AssignableTo(to) {
		return reflect.Value{}, fmt.Errorf("argument %d: cannot use %T as %s", index, arg, to)
	}
	return v, nil
}

// inferDependencies reads the dependencies of a factory declared without
// an explicit list.
func inferDependencies(def Definition) ([]string, error) {
	if def.Source != "" {
		return scanFactorySource(def.Source)
	}

	t := reflect.TypeOf(def.Factory)
	if t == nil || t.Kind() != reflect.Func {
		return nil, nil
	}
	if t.IsVariadic() && t.NumIn() == 1 {
		return nil, nil
	}

	deps := make([]string, 0, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		switch t.In(i) {
		case requireType:
			deps = append(deps, DepRequire)
		case exportsType:
			deps = append(deps, DepExports)
		case moduleType:
			deps = append(deps, DepModule)
		default:
			return nil, fmt.Errorf("%w: parameter %d of type %s", ErrUnrecognizedDependency, i, t.In(i))
		}
	}
	return deps, nil
}

// scanFactorySource parses src as a Go function literal. Parameter names
// must be require, exports or module; require("id") and
// require.Get("id") calls with literal ids add dependencies.
func scanFactorySource(src string) ([]string, error) {
	expr, err := parser.ParseExprFrom(token.NewFileSet(), "factory", src, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFactory, err)
	}
	lit, ok := expr.(*ast.FuncLit)
	if !ok {
		return nil, fmt.Errorf("%w: source is not a function literal", ErrInvalidFactory)
	}

	var deps []string
	for _, field := range lit.Type.Params.List {
		names := field.Names
		if len(names) == 0 {
			// func(require, exports) parses as unnamed params of those types.
			ident, ok := field.Type.(*ast.Ident)
			if !ok {
				return nil, fmt.Errorf("%w: unnamed parameter", ErrUnrecognizedDependency)
			}
			names = []*ast.Ident{ident}
		}
		for _, name := range names {
			switch name.Name {
			case DepRequire, DepExports, DepModule:
				deps = append(deps, name.Name)
			default:
				return nil, fmt.Errorf("%w: %q", ErrUnrecognizedDependency, name.Name)
			}
		}
	}

	ast.Inspect(lit.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok || len(call.Args) != 1 || !isRequireCall(call.Fun) {
			return true
		}
		arg, ok := call.Args[0].(*ast.BasicLit)
		if !ok || arg.Kind != token.STRING {
			return true
		}
		if id, err := strconv.Unquote(arg.Value); err == nil {
			deps = append(deps, id)
		}
		return true
	})

	if deps == nil {
		deps = []string{}
	}
	return deps, nil
}

func isRequireCall(fun ast.Expr) bool {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name == DepRequire
	case *ast.SelectorExpr:
		x, ok := f.X.(*ast.Ident)
		return ok && x.Name == DepRequire && f.Sel.Name == "Get"
	}
	return false
}

func displayID(id string) string {
	if id == "" {
		return "<anonymous>"
	}
	return id
}
