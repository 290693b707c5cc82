package lua

import (
	"log/slog"

	lua "github.com/yuin/gopher-lua"
)

// LogModule forwards script logging to slog. An optional second argument
// is a table of fields.
type LogModule struct {
	logger *slog.Logger
}

func NewLogModule(logger *slog.Logger) *LogModule {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogModule{
		logger: logger,
	}
}

func (l *LogModule) Name() string {
	return "log"
}

func (l *LogModule) Register(L *lua.LState) error {
	logTable := L.NewTable()

	L.SetField(logTable, "debug", L.NewFunction(l.emit(slog.LevelDebug)))
	L.SetField(logTable, "info", L.NewFunction(l.emit(slog.LevelInfo)))
	L.SetField(logTable, "warn", L.NewFunction(l.emit(slog.LevelWarn)))
	L.SetField(logTable, "error", L.NewFunction(l.emit(slog.LevelError)))

	L.SetGlobal(l.Name(), logTable)
	return nil
}

func (l *LogModule) emit(level slog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		message := L.CheckString(1)

		var args []any
		if fields, ok := L.Get(2).(*lua.LTable); ok {
			fields.ForEach(func(k, v lua.LValue) {
				if key, ok := k.(lua.LString); ok {
					args = append(args, string(key), ToGoValue(v))
				}
			})
		}

		l.logger.Log(L.Context(), level, message, args...)
		return 0
	}
}
