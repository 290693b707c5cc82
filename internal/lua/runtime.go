// Package lua hosts the sandboxed interpreter that runs venue scripts.
package lua

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	lua "github.com/yuin/gopher-lua"
)

// Runtime wraps one LState. It is not safe for concurrent use; callers
// create a runtime per extraction.
type Runtime struct {
	state      *lua.LState
	secureMode bool
	setupErr   *multierror.Error
}

type RuntimeOption func(*Runtime)

// Module is a native library exposed to scripts as a global table.
type Module interface {
	Name() string
	Register(L *lua.LState) error
}

func WithLoader(loader Loader) RuntimeOption {
	return func(r *Runtime) {
		if loader != nil {
			SetupRequire(r.state, loader)
		}
	}
}

func WithSecureMode(secure bool) RuntimeOption {
	return func(r *Runtime) {
		r.secureMode = secure
	}
}

// WithModules registers native modules as globals.
func WithModules(modules ...Module) RuntimeOption {
	return func(r *Runtime) {
		for _, m := range modules {
			if err := m.Register(r.state); err != nil {
				r.setupErr = multierror.Append(r.setupErr, fmt.Errorf("module %s: %w", m.Name(), err))
			}
		}
	}
}

// WithPreload makes a Go module available through require(name).
func WithPreload(name string, loader lua.LGFunction) RuntimeOption {
	return func(r *Runtime) {
		r.state.PreloadModule(name, loader)
	}
}

// NewRuntime builds a runtime. A module that fails to register closes the
// state and fails the whole runtime.
func NewRuntime(options ...RuntimeOption) (*Runtime, error) {
	L := lua.NewState()

	runtime := &Runtime{
		state:      L,
		secureMode: true,
	}

	for _, opt := range options {
		opt(runtime)
	}
	if err := runtime.setupErr.ErrorOrNil(); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to set up lua runtime: %w", err)
	}

	if runtime.secureMode {
		runtime.setupSecureState()
	}

	return runtime, nil
}

func (r *Runtime) State() *lua.LState {
	return r.state
}

func (r *Runtime) setupSecureState() {
	for _, name := range []string{"os", "io", "debug", "dofile", "loadfile"} {
		r.state.SetGlobal(name, lua.LNil)
	}
}

func (r *Runtime) LoadScript(scriptContent string) error {
	if err := r.state.DoString(scriptContent); err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}
	return nil
}

// Execute calls the global function name with args converted to Lua
// values. Cancelling ctx aborts the running script.
func (r *Runtime) Execute(ctx context.Context, functionName string, args ...interface{}) ([]interface{}, error) {
	fn := r.state.GetGlobal(functionName)
	if fn == lua.LNil {
		return nil, fmt.Errorf("function %s not found", functionName)
	}

	luaFn, ok := fn.(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", functionName)
	}

	if ctx != nil {
		r.state.SetContext(ctx)
		defer r.state.RemoveContext()
	}

	r.state.Push(luaFn)
	for _, arg := range args {
		r.state.Push(ToLuaValue(r.state, arg))
	}

	if err := r.state.PCall(len(args), lua.MultRet, nil); err != nil {
		r.state.SetTop(0)
		return nil, fmt.Errorf("lua execution error: %w", err)
	}

	numResults := r.state.GetTop()
	results := make([]interface{}, numResults)
	for i := 1; i <= numResults; i++ {
		results[i-1] = ToGoValue(r.state.Get(i))
	}

	r.state.SetTop(0)

	return results, nil
}

func (r *Runtime) Close() error {
	if r.state != nil {
		r.state.Close()
		r.state = nil
	}
	return nil
}
