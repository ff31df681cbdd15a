// Package bot assembles a dispatch engine from configuration: the default
// admission filters, the built-in commands, lifecycle handlers and any
// configured catalog or throttle.
package bot

import (
	"fmt"
	"log/slog"
	"strings"

	"drivel/pkg/catalog"
	"drivel/pkg/config"
	"drivel/pkg/dispatch"
	"drivel/pkg/pattern"
	"drivel/pkg/throttle"
)

// Plugin installs one feature on an engine.
type Plugin struct {
	Name  string
	Setup func(*dispatch.Engine) error
}

// NewEngine builds an engine addressed by the configured nickname and
// sigils. Replies go to sender.
func NewEngine(cfg *config.Config, sender dispatch.Sender, log *slog.Logger) *dispatch.Engine {
	prefix := pattern.Prefix{
		Nickname:      strings.TrimSpace(cfg.Bot.Nickname),
		Sigils:        cfg.Bot.Sigils,
		Optional:      cfg.Bot.AllowBareInGroup,
		CaseSensitive: cfg.Bot.CaseSensitive,
	}

	opts := []dispatch.Option{
		dispatch.WithPrefix(prefix),
		dispatch.WithDirectPrefixOptional(!cfg.Bot.RequirePrefixInDirect),
	}
	if log != nil {
		opts = append(opts, dispatch.WithLogger(log))
	}
	if fallback := strings.TrimSpace(cfg.Bot.DescribeFallback); fallback != "" {
		opts = append(opts, dispatch.WithDescribeFallback(fallback))
	}

	return dispatch.New(dispatch.Nickname(prefix.Nickname), sender, opts...)
}

// Plugins returns the default plugin table for cfg. It fails when the
// configured catalog cannot be loaded.
func Plugins(cfg *config.Config, log *slog.Logger) ([]Plugin, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bot")

	plugins := []Plugin{
		{Name: "admission", Setup: Admission(cfg.Bot)},
	}

	if cfg.Throttle.Enabled {
		plugins = append(plugins, Plugin{Name: "throttle", Setup: throttle.New(cfg.Throttle).Install})
	}

	plugins = append(plugins, Plugin{Name: "lifecycle", Setup: Lifecycle(cfg.Bot, log)})

	if !cfg.Bot.DisableBuiltins {
		plugins = append(plugins, Plugin{Name: "builtins", Setup: Builtins})
	}

	if path := strings.TrimSpace(cfg.Catalog.Path); path != "" {
		cat, err := catalog.Load(path)
		if err != nil {
			return nil, err
		}
		log.Info("Catalog loaded", "path", path, "commands", len(cat.Commands))
		plugins = append(plugins, Plugin{Name: "catalog", Setup: cat.Register})
	}

	return plugins, nil
}

// Install runs each plugin's setup in order.
func Install(engine *dispatch.Engine, plugins ...Plugin) error {
	for _, plugin := range plugins {
		if plugin.Setup == nil {
			continue
		}
		if err := plugin.Setup(engine); err != nil {
			return fmt.Errorf("install %s plugin: %w", plugin.Name, err)
		}
	}

	return nil
}

// Build creates an engine with the default plugins followed by extra, and
// seals its registries.
func Build(cfg *config.Config, sender dispatch.Sender, log *slog.Logger, extra ...Plugin) (*dispatch.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	plugins, err := Plugins(cfg, log)
	if err != nil {
		return nil, err
	}

	engine := NewEngine(cfg, sender, log)
	if err := Install(engine, append(plugins, extra...)...); err != nil {
		return nil, err
	}
	engine.Start()

	return engine, nil
}
