package scans

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wpfleet/internal/adapters/memory"
	"wpfleet/internal/domain"
	"wpfleet/internal/ports"
	"wpfleet/internal/probe"
	"wpfleet/internal/scoring"
	"wpfleet/internal/wpclient"
)

const goodKey = "0123456789abcdef0123456789abcdef"

// fakeSite serves both the management plugin and a public front page.
func fakeSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/wp-json/wrms/v1/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(wpclient.HeaderAPIKey) != goodKey {
			http.Error(w, `{"error": "invalid key"}`, http.StatusUnauthorized)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/status"):
			w.Write([]byte(`{"wordpress_version": "6.6.2", "ssl_enabled": true}`))
		case strings.HasSuffix(r.URL.Path, "/updates"):
			w.Write([]byte(`{"plugins": [{"name": "Akismet", "slug": "akismet", "current_version": "5.2", "new_version": "5.3"}], "themes": []}`))
		default:
			w.Write([]byte(`[]`))
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>A Reasonably Long Example Title</title>` +
			`<meta name="description" content="A description long enough to satisfy the snippet length checks in place here."></head>` +
			`<body><h1>Hello</h1></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	svc   *Service
	sites *memory.SiteStore
	scans *memory.ScanStore
}

func newFixture(t *testing.T, baseURL string) *fixture {
	t.Helper()
	sites := memory.NewSiteStore()
	err := sites.Create(context.Background(), domain.Site{
		ID:      "site-1",
		Name:    "Site One",
		BaseURL: baseURL,
		APIKey:  goodKey,
	})
	if err != nil {
		t.Fatal(err)
	}
	scans := memory.NewScanStore()
	svc := New(sites, scans, wpclient.New(2*time.Second), probe.New(2*time.Second), scoring.NewEngine(scoring.DefaultThresholds()))
	return &fixture{svc: svc, sites: sites, scans: scans}
}

func TestRunWaitReturnsTerminalRecord(t *testing.T) {
	f := newFixture(t, fakeSite(t).URL)

	rec, err := f.svc.Run(context.Background(), "site-1", domain.ScanTypeSecurity, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != domain.ScanStatusCompleted {
		t.Fatalf("status = %s, error = %q", rec.Status, rec.Error)
	}
	if rec.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if rec.OverallScore <= 0 || rec.OverallScore > 100 {
		t.Errorf("score = %d", rec.OverallScore)
	}
	if len(rec.RawData) == 0 {
		t.Error("RawData empty")
	}
	// One pending plugin update should surface as a finding.
	found := false
	for _, fd := range rec.Findings {
		if fd.Category == "plugin_updates" {
			found = true
		}
	}
	if !found {
		t.Errorf("findings = %+v", rec.Findings)
	}
}

func TestRunNoWaitLeavesPending(t *testing.T) {
	f := newFixture(t, fakeSite(t).URL)

	rec, err := f.svc.Run(context.Background(), "site-1", domain.ScanTypePerformance, false)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.ScanStatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	stored, err := f.scans.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.ScanStatusPending {
		t.Errorf("stored status = %s", stored.Status)
	}
}

func TestRunInvalidScanType(t *testing.T) {
	f := newFixture(t, fakeSite(t).URL)

	_, err := f.svc.Run(context.Background(), "site-1", "vibes", true)
	if !errors.Is(err, ErrBadScanType) {
		t.Errorf("err = %v, want ErrBadScanType", err)
	}
}

func TestRunUnknownSite(t *testing.T) {
	f := newFixture(t, fakeSite(t).URL)

	_, err := f.svc.Run(context.Background(), "ghost", domain.ScanTypeSecurity, true)
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRunRecordsFailureKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "stale key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	f := newFixture(t, srv.URL)

	rec, err := f.svc.Run(context.Background(), "site-1", domain.ScanTypeSecurity, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != domain.ScanStatusFailed {
		t.Fatalf("status = %s", rec.Status)
	}
	if !strings.HasPrefix(rec.Error, string(domain.ErrKindAuthRejected)) {
		t.Errorf("error = %q", rec.Error)
	}
}

// contendedScanStore simulates a background worker winning the claim: Start
// reports the record as taken and a goroutine completes it shortly after.
type contendedScanStore struct {
	*memory.ScanStore
}

func (s *contendedScanStore) Start(ctx context.Context, id string) (bool, error) {
	claimed, err := s.ScanStore.Start(ctx, id)
	if err != nil || !claimed {
		return claimed, err
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = s.ScanStore.Complete(context.Background(), id, 42, nil, nil, time.Now())
	}()
	return false, nil
}

func TestRunWaitBlocksWhenWorkerClaimsFirst(t *testing.T) {
	sites := memory.NewSiteStore()
	err := sites.Create(context.Background(), domain.Site{
		ID: "site-1", Name: "Site One", BaseURL: fakeSite(t).URL, APIKey: goodKey,
	})
	if err != nil {
		t.Fatal(err)
	}
	store := &contendedScanStore{ScanStore: memory.NewScanStore()}
	svc := New(sites, store, wpclient.New(2*time.Second), probe.New(2*time.Second), scoring.NewEngine(scoring.DefaultThresholds()))

	rec, err := svc.Run(context.Background(), "site-1", domain.ScanTypeSecurity, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rec.Status.Terminal() {
		t.Fatalf("status = %s, want terminal", rec.Status)
	}
	if rec.Status != domain.ScanStatusCompleted || rec.OverallScore != 42 {
		t.Errorf("record = %s score %d, want the worker's result", rec.Status, rec.OverallScore)
	}
}

func TestTerminalRecordsAreImmutable(t *testing.T) {
	f := newFixture(t, fakeSite(t).URL)

	rec, err := f.svc.Run(context.Background(), "site-1", domain.ScanTypeSecurity, true)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Status.Terminal() {
		t.Fatalf("status = %s", rec.Status)
	}

	err = f.scans.Complete(context.Background(), rec.ID, 1, nil, nil, time.Now())
	if !errors.Is(err, ports.ErrRecordTerminal) {
		t.Errorf("Complete on terminal record: err = %v", err)
	}
	err = f.scans.Fail(context.Background(), rec.ID, "nope", time.Now())
	if !errors.Is(err, ports.ErrRecordTerminal) {
		t.Errorf("Fail on terminal record: err = %v", err)
	}

	after, _ := f.scans.GetByID(context.Background(), rec.ID)
	if after.OverallScore != rec.OverallScore || after.Status != rec.Status {
		t.Error("terminal record was mutated")
	}
}

func TestRescanCreatesNewRecord(t *testing.T) {
	f := newFixture(t, fakeSite(t).URL)

	first, err := f.svc.Run(context.Background(), "site-1", domain.ScanTypeSecurity, true)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Run(context.Background(), "site-1", domain.ScanTypeSecurity, true)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Error("rescan reused the record id")
	}
	history, err := f.svc.History(context.Background(), "site-1", domain.ScanTypeSecurity, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}
}

func TestLatestAndTrend(t *testing.T) {
	f := newFixture(t, fakeSite(t).URL)

	// Seed two completed records by hand so the scores and timestamps are
	// controlled.
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	seed := func(id string, score int, at time.Time) {
		rec := domain.ScanRecord{
			ID:        id,
			SiteID:    "site-1",
			ScanType:  domain.ScanTypeSEO,
			Status:    domain.ScanStatusPending,
			StartedAt: at,
		}
		if err := f.scans.Create(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
		if _, err := f.scans.Start(context.Background(), id); err != nil {
			t.Fatal(err)
		}
		if err := f.scans.Complete(context.Background(), id, score, nil, nil, at); err != nil {
			t.Fatal(err)
		}
	}
	seed("old", 60, base)
	seed("new", 75, base.Add(time.Hour))

	latest, ok, err := f.svc.Latest(context.Background(), "site-1", domain.ScanTypeSEO)
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if latest.ID != "new" {
		t.Errorf("latest = %s", latest.ID)
	}

	trend, err := f.svc.Trend(context.Background(), "site-1", domain.ScanTypeSEO)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if trend.LatestScore != 75 || trend.PreviousScore != 60 || trend.Delta != 15 {
		t.Errorf("trend = %+v", trend)
	}
}

func TestTrendWithNoCompletedScans(t *testing.T) {
	f := newFixture(t, fakeSite(t).URL)

	_, err := f.svc.Trend(context.Background(), "site-1", domain.ScanTypePerformance)
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFailedScansExcludedFromLatest(t *testing.T) {
	f := newFixture(t, fakeSite(t).URL)

	good, err := f.svc.Run(context.Background(), "site-1", domain.ScanTypeSecurity, true)
	if err != nil {
		t.Fatal(err)
	}

	// A later failed record must not displace the completed one.
	rec := domain.ScanRecord{
		ID:        "failed-later",
		SiteID:    "site-1",
		ScanType:  domain.ScanTypeSecurity,
		Status:    domain.ScanStatusPending,
		StartedAt: time.Now(),
	}
	if err := f.scans.Create(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if _, err := f.scans.Start(context.Background(), rec.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.scans.Fail(context.Background(), rec.ID, "boom", time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	latest, ok, err := f.svc.Latest(context.Background(), "site-1", domain.ScanTypeSecurity)
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if latest.ID != good.ID {
		t.Errorf("latest = %s, want %s", latest.ID, good.ID)
	}
}

func TestPerformanceScanSurvivesProbeFailure(t *testing.T) {
	// Management API works but the front page 404s: the scan completes and
	// the missing metrics are scored as an absence.
	mux := http.NewServeMux()
	mux.HandleFunc("/wp-json/wrms/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"wordpress_version": "6.6.2", "ssl_enabled": true}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	f := newFixture(t, srv.URL)

	rec, err := f.svc.Run(context.Background(), "site-1", domain.ScanTypePerformance, true)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.ScanStatusCompleted {
		t.Fatalf("status = %s, error = %q", rec.Status, rec.Error)
	}
	if rec.OverallScore != 0 {
		t.Errorf("score = %d, want 0 for missing page metrics", rec.OverallScore)
	}
}

func TestScoresAreReproducibleAcrossRescans(t *testing.T) {
	f := newFixture(t, fakeSite(t).URL)

	var scores []int
	for i := 0; i < 3; i++ {
		rec, err := f.svc.Run(context.Background(), "site-1", domain.ScanTypeSecurity, true)
		if err != nil {
			t.Fatal(err)
		}
		scores = append(scores, rec.OverallScore)
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] != scores[0] {
			t.Fatalf("scores = %v", scores)
		}
	}
}
