package lua

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Loader resolves a script name to its source.
type Loader interface {
	Load(name string) (string, error)
}

// scriptPath maps a script name onto base. Names may not climb out of
// the scripts directory.
func scriptPath(base, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty script name")
	}
	clean := filepath.Clean("/" + name)[1:]
	if clean == "" || clean != name {
		return "", fmt.Errorf("invalid script name %q", name)
	}
	if !strings.HasSuffix(clean, ".lua") {
		clean += ".lua"
	}
	return filepath.Join(base, clean), nil
}

type EmbeddedLoader struct {
	fs       embed.FS
	basePath string
}

func NewEmbeddedLoader(fs embed.FS, basePath string) *EmbeddedLoader {
	return &EmbeddedLoader{
		fs:       fs,
		basePath: basePath,
	}
}

func (e *EmbeddedLoader) Load(name string) (string, error) {
	path, err := scriptPath(e.basePath, name)
	if err != nil {
		return "", err
	}

	// embed.FS always uses forward slashes.
	data, err := e.fs.ReadFile(filepath.ToSlash(path))
	if err != nil {
		return "", fmt.Errorf("failed to load embedded script %s: %w", name, err)
	}

	return string(data), nil
}

type FilesystemLoader struct {
	basePath string
}

func NewFilesystemLoader(basePath string) *FilesystemLoader {
	return &FilesystemLoader{
		basePath: basePath,
	}
}

func (f *FilesystemLoader) Load(name string) (string, error) {
	path, err := scriptPath(f.basePath, name)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to load script %s: %w", name, err)
	}

	return string(data), nil
}

// MultiLoader tries each loader in order.
type MultiLoader []Loader

func (m MultiLoader) Load(name string) (string, error) {
	var lastErr error
	for _, l := range m {
		src, err := l.Load(name)
		if err == nil {
			return src, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no loaders configured")
	}
	return "", lastErr
}

// SetupRequire routes require() to preloaded Go modules first and then to
// loader, so scripts can share helper files.
func SetupRequire(L *lua.LState, loader Loader) {
	originalRequire := L.GetGlobal("require")

	customRequire := L.NewFunction(func(L *lua.LState) int {
		module := L.CheckString(1)

		pkg := L.GetField(L.Get(lua.EnvironIndex), "package")
		preload := L.GetField(pkg, "preload")

		if tbl, ok := preload.(*lua.LTable); ok {
			if L.GetField(tbl, module) != lua.LNil {
				if fn, ok := originalRequire.(*lua.LFunction); ok {
					L.Push(fn)
					L.Push(lua.LString(module))
					L.Call(1, 1)
					return 1
				}
			}
		}

		scriptContent, err := loader.Load(module)
		if err != nil {
			L.RaiseError("failed to require module %s: %s", module, err.Error())
			return 0
		}

		fn, err := L.LoadString(scriptContent)
		if err != nil {
			L.RaiseError("failed to load module %s: %s", module, err.Error())
			return 0
		}

		top := L.GetTop()
		L.Push(fn)
		L.Call(0, lua.MultRet)

		return L.GetTop() - top
	})

	L.SetGlobal("require", customRequire)
}
