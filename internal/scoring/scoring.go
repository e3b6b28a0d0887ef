// Package scoring derives 0-100 scores and categorized findings from
// normalized site data. Scoring is a pure function of its input: the same
// record always yields the same score and the same findings in the same
// order, which keeps rescans reproducible and trend deltas meaningful.
//
// The numeric breakpoints are configuration, not business rules; the
// defaults below are the single source of truth.
package scoring

import (
	"fmt"
	"math"

	"wpfleet/internal/domain"
)

// Thresholds holds every breakpoint the engine uses. All values are
// overridable from configuration.
type Thresholds struct {
	// Performance: load time buckets in milliseconds.
	LoadTimeGoodMS int64 `koanf:"load_time_good_ms" validate:"gt=0"`
	LoadTimeFairMS int64 `koanf:"load_time_fair_ms" validate:"gt=0"`
	LoadTimePoorMS int64 `koanf:"load_time_poor_ms" validate:"gt=0"`

	// Performance: page size buckets in kilobytes.
	PageSizeGoodKB int64 `koanf:"page_size_good_kb" validate:"gt=0"`
	PageSizeFairKB int64 `koanf:"page_size_fair_kb" validate:"gt=0"`
	PageSizePoorKB int64 `koanf:"page_size_poor_kb" validate:"gt=0"`

	// Performance: request count buckets.
	RequestsGood int `koanf:"requests_good" validate:"gt=0"`
	RequestsFair int `koanf:"requests_fair" validate:"gt=0"`
	RequestsPoor int `koanf:"requests_poor" validate:"gt=0"`

	// Security: pending plugin/theme update buckets.
	UpdateDebtLow  int `koanf:"update_debt_low" validate:"gt=0"`
	UpdateDebtHigh int `koanf:"update_debt_high" validate:"gt=0"`
	// Security: inactive plugins tolerated before the surface is flagged.
	InactivePluginsLow int `koanf:"inactive_plugins_low" validate:"gt=0"`

	// SEO: acceptable lengths.
	TitleMinChars int `koanf:"title_min_chars" validate:"gt=0"`
	TitleMaxChars int `koanf:"title_max_chars" validate:"gt=0"`
	MetaMinChars  int `koanf:"meta_min_chars" validate:"gt=0"`
	MetaMaxChars  int `koanf:"meta_max_chars" validate:"gt=0"`
}

// DefaultThresholds returns the stock breakpoints.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LoadTimeGoodMS: 1000,
		LoadTimeFairMS: 2500,
		LoadTimePoorMS: 5000,

		PageSizeGoodKB: 500,
		PageSizeFairKB: 1500,
		PageSizePoorKB: 3000,

		RequestsGood: 30,
		RequestsFair: 60,
		RequestsPoor: 100,

		UpdateDebtLow:      2,
		UpdateDebtHigh:     5,
		InactivePluginsLow: 3,

		TitleMinChars: 10,
		TitleMaxChars: 70,
		MetaMinChars:  50,
		MetaMaxChars:  160,
	}
}

// Engine classifies normalized records. It holds no mutable state.
type Engine struct {
	t Thresholds
}

func NewEngine(t Thresholds) *Engine {
	return &Engine{t: t}
}

// Score evaluates one normalized record for the given scan type.
func (e *Engine) Score(rec *domain.NormalizedRecord, scanType domain.ScanType) (int, []domain.Finding) {
	switch scanType {
	case domain.ScanTypePerformance:
		return e.performance(rec)
	case domain.ScanTypeSecurity:
		return e.security(rec)
	case domain.ScanTypeSEO:
		return e.seo(rec)
	}
	return 0, []domain.Finding{{
		Category:    "scan",
		Severity:    domain.SeverityWarning,
		Description: fmt.Sprintf("unknown scan type %q", scanType),
	}}
}

// dimension is one weighted sub-score.
type dimension struct {
	score  int
	weight int
}

func combine(dims []dimension) int {
	var sum, weights int
	for _, d := range dims {
		sum += d.score * d.weight
		weights += d.weight
	}
	if weights == 0 {
		return 0
	}
	return clamp(int(math.Round(float64(sum) / float64(weights))))
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func (e *Engine) performance(rec *domain.NormalizedRecord) (int, []domain.Finding) {
	findings := make([]domain.Finding, 0, 4)
	page := rec.Page
	if page == nil {
		return 0, append(findings, domain.Finding{
			Category:       "performance",
			Severity:       domain.SeverityWarning,
			Description:    "No page metrics are available for this site.",
			Recommendation: "Verify that the site's front page is publicly reachable.",
		})
	}
	dims := make([]dimension, 0, 4)

	// Load time.
	load := dimension{weight: 40}
	switch {
	case page.LoadTimeMS <= e.t.LoadTimeGoodMS:
		load.score = 100
	case page.LoadTimeMS <= e.t.LoadTimeFairMS:
		load.score = 75
		findings = append(findings, domain.Finding{
			Category:       "load_time",
			Severity:       domain.SeverityNotice,
			Description:    fmt.Sprintf("Page loads in %dms, above the %dms target.", page.LoadTimeMS, e.t.LoadTimeGoodMS),
			Recommendation: "Enable page caching to bring load time under the target.",
		})
	case page.LoadTimeMS <= e.t.LoadTimePoorMS:
		load.score = 40
		findings = append(findings, domain.Finding{
			Category:       "load_time",
			Severity:       domain.SeverityWarning,
			Description:    fmt.Sprintf("Page loads in %dms, which visitors perceive as slow.", page.LoadTimeMS),
			Recommendation: "Enable caching and review slow plugins or the hosting plan.",
		})
	default:
		load.score = 10
		findings = append(findings, domain.Finding{
			Category:       "load_time",
			Severity:       domain.SeverityCritical,
			Description:    fmt.Sprintf("Page takes %dms to load, beyond the %dms limit.", page.LoadTimeMS, e.t.LoadTimePoorMS),
			Recommendation: "Investigate hosting capacity, object caching and plugin overhead immediately.",
		})
	}
	dims = append(dims, load)

	// Page size. Zero means the size is unknown; score it neutral.
	size := dimension{weight: 20, score: 100}
	sizeKB := page.PageSizeBytes / 1024
	switch {
	case page.PageSizeBytes == 0 || sizeKB <= e.t.PageSizeGoodKB:
	case sizeKB <= e.t.PageSizeFairKB:
		size.score = 75
		findings = append(findings, domain.Finding{
			Category:       "page_size",
			Severity:       domain.SeverityNotice,
			Description:    fmt.Sprintf("Front page weighs %dKB.", sizeKB),
			Recommendation: "Compress images and trim unused assets.",
		})
	case sizeKB <= e.t.PageSizePoorKB:
		size.score = 45
		findings = append(findings, domain.Finding{
			Category:       "page_size",
			Severity:       domain.SeverityWarning,
			Description:    fmt.Sprintf("Front page weighs %dKB, well above the %dKB target.", sizeKB, e.t.PageSizeGoodKB),
			Recommendation: "Serve scaled images and lazy-load below-the-fold media.",
		})
	default:
		size.score = 15
		findings = append(findings, domain.Finding{
			Category:       "page_size",
			Severity:       domain.SeverityCritical,
			Description:    fmt.Sprintf("Front page weighs %dKB.", sizeKB),
			Recommendation: "Audit the page for oversized media and embedded payloads.",
		})
	}
	dims = append(dims, size)

	// Compression.
	gz := dimension{weight: 20, score: 100}
	if !page.GzipEnabled {
		gz.score = 0
		findings = append(findings, domain.Finding{
			Category:       "compression",
			Severity:       domain.SeverityWarning,
			Description:    "Responses are served without gzip compression.",
			Recommendation: "Enable gzip or brotli compression at the web server.",
		})
	}
	dims = append(dims, gz)

	// Request count.
	reqs := dimension{weight: 20}
	switch {
	case page.RequestCount <= e.t.RequestsGood:
		reqs.score = 100
	case page.RequestCount <= e.t.RequestsFair:
		reqs.score = 75
		findings = append(findings, domain.Finding{
			Category:       "requests",
			Severity:       domain.SeverityNotice,
			Description:    fmt.Sprintf("Front page references %d resources.", page.RequestCount),
			Recommendation: "Combine or defer non-critical scripts and styles.",
		})
	case page.RequestCount <= e.t.RequestsPoor:
		reqs.score = 45
		findings = append(findings, domain.Finding{
			Category:       "requests",
			Severity:       domain.SeverityWarning,
			Description:    fmt.Sprintf("Front page references %d resources.", page.RequestCount),
			Recommendation: "Reduce the number of plugins injecting assets into the page.",
		})
	default:
		reqs.score = 15
		findings = append(findings, domain.Finding{
			Category:       "requests",
			Severity:       domain.SeverityWarning,
			Description:    fmt.Sprintf("Front page references %d resources, beyond the %d limit.", page.RequestCount, e.t.RequestsPoor),
			Recommendation: "Audit asset loading; most pages need far fewer requests.",
		})
	}
	dims = append(dims, reqs)

	return combine(dims), findings
}

func (e *Engine) security(rec *domain.NormalizedRecord) (int, []domain.Finding) {
	findings := make([]domain.Finding, 0, 4)
	dims := make([]dimension, 0, 4)

	// Transport security.
	ssl := dimension{weight: 30, score: 100}
	if !rec.SSLEnabled {
		ssl.score = 0
		findings = append(findings, domain.Finding{
			Category:       "ssl",
			Severity:       domain.SeverityCritical,
			Description:    "The site is served without SSL.",
			Recommendation: "Install a certificate and force HTTPS for all traffic.",
		})
	}
	dims = append(dims, ssl)

	// Core currency.
	core := dimension{weight: 30, score: 100}
	if rec.Updates.CoreNewVersion != "" {
		core.score = 25
		findings = append(findings, domain.Finding{
			Category:       "core_updates",
			Severity:       domain.SeverityCritical,
			Description:    fmt.Sprintf("WordPress %s is outdated; %s is available.", rec.WordPressVersion, rec.Updates.CoreNewVersion),
			Recommendation: "Apply the core update; outdated cores carry known vulnerabilities.",
		})
	}
	dims = append(dims, core)

	// Plugin and theme update debt.
	debt := pendingUpdates(rec)
	upd := dimension{weight: 25}
	switch {
	case debt == 0:
		upd.score = 100
	case debt <= e.t.UpdateDebtLow:
		upd.score = 70
		findings = append(findings, domain.Finding{
			Category:       "plugin_updates",
			Severity:       domain.SeverityNotice,
			Description:    fmt.Sprintf("%d extension update(s) pending.", debt),
			Recommendation: "Schedule the pending updates.",
		})
	case debt <= e.t.UpdateDebtHigh:
		upd.score = 40
		findings = append(findings, domain.Finding{
			Category:       "plugin_updates",
			Severity:       domain.SeverityWarning,
			Description:    fmt.Sprintf("%d extension updates pending.", debt),
			Recommendation: "Apply plugin and theme updates; stale extensions are a common entry point.",
		})
	default:
		upd.score = 10
		findings = append(findings, domain.Finding{
			Category:       "plugin_updates",
			Severity:       domain.SeverityCritical,
			Description:    fmt.Sprintf("%d extension updates pending.", debt),
			Recommendation: "Update everything, then enable a regular update cadence.",
		})
	}
	dims = append(dims, upd)

	// Attack surface from inactive code.
	inactive := 0
	for _, p := range rec.Plugins {
		if !p.Active {
			inactive++
		}
	}
	surface := dimension{weight: 15}
	switch {
	case inactive == 0:
		surface.score = 100
	case inactive <= e.t.InactivePluginsLow:
		surface.score = 80
		findings = append(findings, domain.Finding{
			Category:       "attack_surface",
			Severity:       domain.SeverityNotice,
			Description:    fmt.Sprintf("%d inactive plugin(s) remain installed.", inactive),
			Recommendation: "Delete plugins that are not in use.",
		})
	default:
		surface.score = 50
		findings = append(findings, domain.Finding{
			Category:       "attack_surface",
			Severity:       domain.SeverityWarning,
			Description:    fmt.Sprintf("%d inactive plugins remain installed.", inactive),
			Recommendation: "Inactive plugins still ship exploitable code; remove them.",
		})
	}
	dims = append(dims, surface)

	return combine(dims), findings
}

func (e *Engine) seo(rec *domain.NormalizedRecord) (int, []domain.Finding) {
	findings := make([]domain.Finding, 0, 4)
	dims := make([]dimension, 0, 4)
	page := rec.Page

	if page == nil {
		findings = append(findings, domain.Finding{
			Category:       "seo",
			Severity:       domain.SeverityWarning,
			Description:    "The front page could not be analyzed.",
			Recommendation: "Verify that the site's front page is publicly reachable.",
		})
	} else {
		// Title tag.
		title := dimension{weight: 30}
		switch n := len(page.Title); {
		case n == 0:
			title.score = 0
			findings = append(findings, domain.Finding{
				Category:       "title",
				Severity:       domain.SeverityWarning,
				Description:    "The front page has no title tag.",
				Recommendation: "Add a descriptive title; it is the primary search snippet.",
			})
		case n < e.t.TitleMinChars || n > e.t.TitleMaxChars:
			title.score = 60
			findings = append(findings, domain.Finding{
				Category:       "title",
				Severity:       domain.SeverityNotice,
				Description:    fmt.Sprintf("Title length %d is outside the %d-%d character range.", n, e.t.TitleMinChars, e.t.TitleMaxChars),
				Recommendation: "Keep titles concise so they are not truncated in results.",
			})
		default:
			title.score = 100
		}
		dims = append(dims, title)

		// Meta description.
		meta := dimension{weight: 30}
		switch n := len(page.MetaDescription); {
		case n == 0:
			meta.score = 0
			findings = append(findings, domain.Finding{
				Category:       "meta_description",
				Severity:       domain.SeverityWarning,
				Description:    "The front page has no meta description.",
				Recommendation: "Add a meta description to control the search snippet.",
			})
		case n < e.t.MetaMinChars || n > e.t.MetaMaxChars:
			meta.score = 60
			findings = append(findings, domain.Finding{
				Category:       "meta_description",
				Severity:       domain.SeverityNotice,
				Description:    fmt.Sprintf("Meta description length %d is outside the %d-%d character range.", n, e.t.MetaMinChars, e.t.MetaMaxChars),
				Recommendation: "Aim for one or two complete sentences.",
			})
		default:
			meta.score = 100
		}
		dims = append(dims, meta)

		// Heading structure.
		h1 := dimension{weight: 20}
		switch {
		case page.H1Count == 1:
			h1.score = 100
		case page.H1Count == 0:
			h1.score = 30
			findings = append(findings, domain.Finding{
				Category:       "headings",
				Severity:       domain.SeverityWarning,
				Description:    "The front page has no H1 heading.",
				Recommendation: "Add exactly one H1 describing the page.",
			})
		default:
			h1.score = 60
			findings = append(findings, domain.Finding{
				Category:       "headings",
				Severity:       domain.SeverityNotice,
				Description:    fmt.Sprintf("The front page has %d H1 headings.", page.H1Count),
				Recommendation: "Use a single H1 and demote the rest.",
			})
		}
		dims = append(dims, h1)
	}

	// HTTPS as a ranking signal.
	ssl := dimension{weight: 20, score: 100}
	if !rec.SSLEnabled {
		ssl.score = 0
		findings = append(findings, domain.Finding{
			Category:       "ssl",
			Severity:       domain.SeverityWarning,
			Description:    "The site is served without HTTPS.",
			Recommendation: "Search engines prefer HTTPS sites; install a certificate.",
		})
	}
	dims = append(dims, ssl)

	return combine(dims), findings
}

// pendingUpdates counts extension updates from the updates payload, falling
// back to the inventory flags for plugin versions without /updates.
func pendingUpdates(rec *domain.NormalizedRecord) int {
	n := len(rec.Updates.Plugins) + len(rec.Updates.Themes)
	if n > 0 {
		return n
	}
	for _, p := range rec.Plugins {
		if p.UpdateAvailable {
			n++
		}
	}
	for _, t := range rec.Themes {
		if t.UpdateAvailable {
			n++
		}
	}
	return n
}
