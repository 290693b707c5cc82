package extractors

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cjoudrey/gluahttp"
	luajson "layeh.com/gopher-json"

	"evently/internal/lua"
	"evently/internal/types"
)

//go:embed scripts/*.lua
var builtinScripts embed.FS

// ScriptExtractor runs a per-venue Lua script. The script defines
// scrape(config) and returns a list of event tables; an empty table means
// the venue has nothing scheduled.
type ScriptExtractor struct {
	loader     lua.Loader
	httpClient *http.Client
	configs    map[string]interface{}
	logger     *slog.Logger
}

// NewScriptExtractor looks scripts up in dir first and then among the
// built-in scripts. configs maps a script name to the table passed to it.
func NewScriptExtractor(dir string, httpClient *http.Client, configs map[string]interface{}, logger *slog.Logger) *ScriptExtractor {
	loaders := lua.MultiLoader{}
	if dir != "" {
		loaders = append(loaders, lua.NewFilesystemLoader(dir))
	}
	loaders = append(loaders, lua.NewEmbeddedLoader(builtinScripts, "scripts"))

	if configs == nil {
		configs = map[string]interface{}{}
	}
	return &ScriptExtractor{
		loader:     loaders,
		httpClient: httpClient,
		configs:    configs,
		logger:     logger,
	}
}

func (s *ScriptExtractor) Kind() types.SourceKind { return types.KindVenueScript }

func (s *ScriptExtractor) Extract(ctx context.Context, target string) (types.ExtractResult, error) {
	name := strings.TrimSpace(target)
	if strings.HasPrefix(strings.ToLower(name), scriptPrefix) {
		name = strings.TrimSpace(name[len(scriptPrefix):])
	}

	source, err := s.loader.Load(name)
	if err != nil {
		return types.ExtractResult{}, err
	}

	runtime, err := lua.NewRuntime(
		lua.WithLoader(s.loader),
		lua.WithPreload("http", gluahttp.NewHttpModule(s.httpClient).Loader),
		lua.WithModules(lua.NewHTMLModule(), lua.NewLogModule(s.logger.With("script", name))),
		lua.WithSecureMode(true),
	)
	if err != nil {
		return types.ExtractResult{}, fmt.Errorf("script %s: %w", name, err)
	}
	defer runtime.Close()
	luajson.Preload(runtime.State())

	if err := runtime.LoadScript(source); err != nil {
		return types.ExtractResult{}, fmt.Errorf("script %s: %w", name, err)
	}

	cfg := map[string]interface{}{"name": name}
	if extra, ok := s.configs[name].(map[string]interface{}); ok {
		for k, v := range extra {
			cfg[k] = v
		}
	}

	results, err := runtime.Execute(ctx, "scrape", cfg)
	if err != nil {
		return types.ExtractResult{}, fmt.Errorf("script %s: %w", name, err)
	}
	if len(results) == 0 {
		// Returning nothing at all is a broken script, not an empty venue.
		return types.ExtractResult{}, nil
	}

	list, err := lua.ToGoSlice(results[0])
	if err != nil {
		return types.ExtractResult{}, fmt.Errorf("script %s: %w", name, err)
	}
	if len(list) == 0 {
		s.logger.Debug("Script reported no upcoming events", "script", name)
		return types.Empty(), nil
	}

	events := make([]types.RawEvent, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			s.logger.Warn("Skipping non-table script result", "script", name, "index", i, "type", fmt.Sprintf("%T", item))
			continue
		}
		events = append(events, tableToRaw(m))
	}
	return types.Found(events), nil
}

func tableToRaw(m map[string]interface{}) types.RawEvent {
	get := func(keys ...string) string {
		for _, k := range keys {
			switch v := m[k].(type) {
			case string:
				if v != "" {
					return v
				}
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		return ""
	}

	raw := types.RawEvent{
		Title:       get("title"),
		Description: get("description"),
		StartText:   get("start", "start_at"),
		EndText:     get("end", "end_at"),
		Venue:       get("venue"),
		Address:     get("address"),
		City:        get("city"),
		PriceTier:   get("price_tier"),
		ImageURL:    get("image", "image_url"),
		SourceURL:   get("url", "source_url"),
		Category:    get("category"),
		BaseURL:     get("base_url"),
	}

	switch p := m["price"].(type) {
	case float64:
		raw.PriceAmount = &p
	case string:
		raw.PriceText = p
	}

	return raw
}
