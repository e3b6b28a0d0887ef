// Package normalize maps the heterogeneous JSON shapes returned by
// different management-plugin versions into the dashboard's canonical
// record. Missing optional fields map to zero values; legacy key names are
// tried after the current ones. Unknown fields are ignored, not passed
// through.
package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"wpfleet/internal/domain"
)

// Error reports a field required by downstream consumers that was absent
// from both the current and every known legacy key.
type Error struct {
	Field string
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalization: required field %q missing", e.Field)
}

// RawPayload is one site's raw responses as fetched by the coordinator.
// Only Status is mandatory; the rest enrich the record when present.
type RawPayload struct {
	Status  json.RawMessage
	Updates json.RawMessage
	Plugins json.RawMessage
	Themes  json.RawMessage
	Users   json.RawMessage
}

// Record builds the canonical record for one site. The core version string
// is the only hard requirement; everything else degrades to defaults.
func Record(p RawPayload, now time.Time) (*domain.NormalizedRecord, error) {
	status := decode(p.Status)

	version := getString(status, "wordpress_version", "wp_version", "version")
	if version == "" {
		return nil, &Error{Field: "wordpress_version"}
	}

	rec := &domain.NormalizedRecord{
		WordPressVersion: version,
		PHPVersion:       getString(status, "php_version", "php"),
		MySQLVersion:     getString(status, "mysql_version", "mysql"),
		SSLEnabled:       getBool(status, "ssl_enabled", "ssl"),
		MaintenanceMode:  getBool(status, "maintenance_mode", "maintenance"),
		PluginCount:      getInt(status, "plugin_count", "plugins_count"),
		ThemeCount:       getInt(status, "theme_count", "themes_count"),
		Plugins:          plugins(p.Plugins),
		Themes:           themes(p.Themes),
		Users:            users(p.Users),
		Updates:          updates(p.Updates),
		CollectedAt:      now.UTC(),
	}

	if rec.PluginCount == 0 {
		rec.PluginCount = len(rec.Plugins)
	}
	if rec.ThemeCount == 0 {
		rec.ThemeCount = len(rec.Themes)
	}
	if page := pageMetrics(status); page != nil {
		rec.Page = page
	}
	return rec, nil
}

func plugins(raw json.RawMessage) []domain.Plugin {
	out := make([]domain.Plugin, 0)
	for _, m := range items(raw, "plugins") {
		out = append(out, domain.Plugin{
			Name:            getString(m, "name", "plugin_name"),
			File:            getString(m, "file", "plugin", "plugin_file"),
			Version:         getString(m, "version"),
			Active:          getBool(m, "active", "is_active"),
			UpdateAvailable: getBool(m, "update_available", "update"),
			NewVersion:      getString(m, "new_version", "update_version"),
		})
	}
	return out
}

func themes(raw json.RawMessage) []domain.Theme {
	out := make([]domain.Theme, 0)
	for _, m := range items(raw, "themes") {
		out = append(out, domain.Theme{
			Name:            getString(m, "name", "theme_name"),
			Slug:            getString(m, "slug", "stylesheet"),
			Version:         getString(m, "version"),
			Active:          getBool(m, "active", "is_active"),
			UpdateAvailable: getBool(m, "update_available", "update"),
		})
	}
	return out
}

func users(raw json.RawMessage) []domain.User {
	out := make([]domain.User, 0)
	for _, m := range items(raw, "users") {
		out = append(out, domain.User{
			Username:    getString(m, "username", "user_login", "login"),
			DisplayName: getString(m, "display_name", "name"),
			Email:       getString(m, "email", "user_email"),
			Role:        getString(m, "role"),
		})
	}
	return out
}

func updates(raw json.RawMessage) domain.UpdateSet {
	m := decode(raw)
	set := domain.UpdateSet{
		Plugins: make([]domain.UpdateItem, 0),
		Themes:  make([]domain.UpdateItem, 0),
	}
	if core, ok := m["wordpress"].(map[string]any); ok {
		set.CoreCurrentVersion = getString(core, "current_version", "version")
		set.CoreNewVersion = getString(core, "new_version", "update_version")
	}
	for _, item := range itemsOf(m, "plugins") {
		set.Plugins = append(set.Plugins, updateItem(item))
	}
	for _, item := range itemsOf(m, "themes") {
		set.Themes = append(set.Themes, updateItem(item))
	}
	return set
}

func updateItem(m map[string]any) domain.UpdateItem {
	return domain.UpdateItem{
		Name:           getString(m, "name"),
		Slug:           getString(m, "slug", "plugin", "file"),
		CurrentVersion: getString(m, "current_version", "version"),
		NewVersion:     getString(m, "new_version", "update_version"),
	}
}

// pageMetrics picks up page measurements when the remote plugin reports
// them; the front-page probe overrides these for scan runs.
func pageMetrics(status map[string]any) *domain.PageMetrics {
	perf, ok := status["performance"].(map[string]any)
	if !ok {
		return nil
	}
	return &domain.PageMetrics{
		LoadTimeMS:    int64(getInt(perf, "load_time_ms", "load_time")),
		PageSizeBytes: int64(getInt(perf, "page_size_bytes", "page_size")),
		GzipEnabled:   getBool(perf, "gzip_enabled", "gzip"),
		RequestCount:  getInt(perf, "request_count", "requests"),
	}
}

// decode unwraps the plugin's response envelope: payloads may sit at the
// top level or under a "data" key depending on plugin version.
func decode(raw json.RawMessage) map[string]any {
	var m map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil {
		return map[string]any{}
	}
	if data, ok := m["data"].(map[string]any); ok {
		return data
	}
	return m
}

// items extracts a list payload that may be a bare array, or an object with
// the list under the given key or under "data".
func items(raw json.RawMessage, key string) []map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var list []any
	if json.Unmarshal(raw, &list) == nil {
		return objects(list)
	}
	return itemsOf(decode(raw), key)
}

func itemsOf(m map[string]any, key string) []map[string]any {
	list, ok := m[key].([]any)
	if !ok {
		return nil
	}
	return objects(list)
}

func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func getBool(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := m[k].(type) {
		case bool:
			return v
		case string:
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
		case float64:
			return v != 0
		}
	}
	return false
}

func getInt(m map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int(v)
		case string:
			var n int
			if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
				return n
			}
		}
	}
	return 0
}
