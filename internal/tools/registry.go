// Package tools maintains the in-memory registry of generation tool
// definitions fetched from the data service, plus the parameter parsing
// shared by the settings and tweak flows.
package tools

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/musebot/internal/dataapi"
)

// Definition is a tool definition as published by the data service.
type Definition = dataapi.ToolDefinition

// ParamSpec is one schema parameter of a tool.
type ParamSpec = dataapi.ParamSpec

// Source fetches tool definitions. Implemented by the data API client.
type Source interface {
	ToolRegistry(ctx context.Context) ([]dataapi.ToolDefinition, error)
}

// Registry is the periodically refreshed tool catalog. Lookups are served
// from the last good snapshot; a failed refresh keeps the previous one.
type Registry struct {
	source   Source
	interval time.Duration

	mu        sync.RWMutex
	defs      []Definition
	byID      map[string]*Definition
	byName    map[string]*Definition
	byCommand map[string]*Definition
	byKey     map[string]*Definition
	loadedAt  time.Time
}

// NewRegistry builds a registry over source with the given refresh
// interval.
func NewRegistry(source Source, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Registry{
		source:    source,
		interval:  interval,
		byID:      make(map[string]*Definition),
		byName:    make(map[string]*Definition),
		byCommand: make(map[string]*Definition),
		byKey:     make(map[string]*Definition),
	}
}

// Refresh fetches the registry once and swaps in the new snapshot.
func (r *Registry) Refresh(ctx context.Context) error {
	defs, err := r.source.ToolRegistry(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]*Definition, len(defs))
	byName := make(map[string]*Definition, len(defs))
	byCommand := make(map[string]*Definition, len(defs))
	byKey := make(map[string]*Definition, len(defs))
	for i := range defs {
		d := &defs[i]
		if _, dup := byID[d.ToolID]; dup {
			slog.Warn("duplicate tool id in registry", "tool_id", d.ToolID)
			continue
		}
		byID[d.ToolID] = d
		if name := strings.ToLower(d.DisplayName); name != "" {
			if _, dup := byName[name]; dup {
				slog.Warn("duplicate tool display name in registry", "display_name", d.DisplayName)
			} else {
				byName[name] = d
			}
		}
		if cmd := strings.ToLower(d.CommandName); cmd != "" {
			byCommand[cmd] = d
		}
		byKey[CallbackKey(d.DisplayName)] = d
	}

	r.mu.Lock()
	r.defs = defs
	r.byID = byID
	r.byName = byName
	r.byCommand = byCommand
	r.byKey = byKey
	r.loadedAt = time.Now()
	r.mu.Unlock()

	slog.Info("tool registry refreshed", "tools", len(defs))
	return nil
}

// Run refreshes the registry on its interval until ctx is done. The first
// refresh is expected to have happened at startup; failures here only log,
// keeping the previous snapshot live.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				slog.Warn("tool registry refresh failed", "error", err)
			}
		}
	}
}

// All returns the visible tools sorted by display name.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		if !d.Metadata.Hidden {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out
}

// ByID looks a tool up by its registry id.
func (r *Registry) ByID(toolID string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[toolID]
}

// ByDisplayName looks a tool up by display name, case-insensitively.
func (r *Registry) ByDisplayName(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[strings.ToLower(name)]
}

// ByCommand looks a tool up by its command name, case-insensitively.
func (r *Registry) ByCommand(cmd string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byCommand[strings.ToLower(cmd)]
}

// ByCallbackKey looks a tool up by its underscored callback key.
func (r *Registry) ByCallbackKey(key string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byKey[key]
}

// ForRecord resolves the tool behind a generation record, preferring the
// display name recorded at submission time and falling back to the tool id.
func (r *Registry) ForRecord(toolDisplayName, toolID string) *Definition {
	if toolDisplayName != "" {
		if d := r.ByDisplayName(toolDisplayName); d != nil {
			return d
		}
	}
	return r.ByID(toolID)
}

// SplitCallbackKey finds the tool whose callback key prefixes rest and
// returns it with the remainder after the key and separator. Display names
// may themselves contain underscores, so the registry is scanned for the
// longest matching key instead of splitting on the separator.
func (r *Registry) SplitCallbackKey(rest string) (*Definition, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *Definition
	bestLen := -1
	for key, d := range r.byKey {
		if rest != key && !strings.HasPrefix(rest, key+"_") {
			continue
		}
		if len(key) > bestLen {
			best, bestLen = d, len(key)
		}
	}
	if best == nil {
		return nil, ""
	}
	if len(rest) == bestLen {
		return best, ""
	}
	return best, rest[bestLen+1:]
}

// LoadedAt reports when the current snapshot was fetched.
func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

// CallbackKey converts a tool display name into the underscored key used
// inside callback data.
func CallbackKey(displayName string) string {
	return strings.ReplaceAll(displayName, " ", "_")
}
