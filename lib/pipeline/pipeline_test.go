package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"catalog-harvester/lib/cleaner"
	"catalog-harvester/lib/dataset"
	"catalog-harvester/lib/download"
	"catalog-harvester/lib/harvest"
	"catalog-harvester/lib/navigator/static"
	"catalog-harvester/lib/restyutil"
	"catalog-harvester/lib/sources"
	"catalog-harvester/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type paper struct {
	name string
	desc string
	date string
}

var catalog = [][]paper{
	{
		{"Security Pillar", "How to secure workloads.", "March 2021"},
		{"Cost Optimization", "Spend less.", "July 2020"},
	},
	{
		{"Reliability Pillar", "Recover from failure.", "March 2021"},
		{"Serverless Lens", "", "January 2022"},
	},
}

func renderPage(w http.ResponseWriter, index int) {
	fmt.Fprint(w, "<html><body><div class=\"list\">")
	for _, p := range catalog[index] {
		fmt.Fprint(w, `<div class="m-card">`)
		fmt.Fprintf(w, `<div class="m-headline">%s</div>`, p.name)
		fmt.Fprint(w, `<div class="m-desc">`)
		if p.desc != "" {
			fmt.Fprintf(w, `<p>%s</p>`, p.desc)
		}
		slug := strings.ToLower(strings.ReplaceAll(p.name, " ", "-"))
		fmt.Fprintf(w, `<a href="/docs/%s.pdf">PDF</a></div>`, slug)
		fmt.Fprintf(w, `<span class="m-info-txt">%s</span>`, p.date)
		fmt.Fprint(w, `</div>`)
	}
	fmt.Fprint(w, "</div>")
	if index < len(catalog)-1 {
		fmt.Fprintf(w, `<a class="next" href="/whitepapers?page=%d">Next</a>`, index+2)
	}
	fmt.Fprint(w, "</body></html>")
}

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/whitepapers", func(w http.ResponseWriter, r *http.Request) {
		page := 1
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		if page < 1 || page > len(catalog) {
			http.NotFound(w, r)
			return
		}
		renderPage(w, page-1)
	})
	mux.HandleFunc("/docs/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") == "cost-optimization.pdf" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		fmt.Fprintf(w, "%%PDF-1.7 %s", r.PathValue("name"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testPreset(t *testing.T, srv *httptest.Server, pages int) sources.Preset {
	t.Helper()
	preset, err := sources.Lookup("test-whitepapers", map[string]sources.Preset{
		"test-whitepapers": {
			SchemaVersion: "test",
			Source: harvest.Source{
				EntryURL:       srv.URL + "/whitepapers",
				RecordSelector: ".m-card",
				Schema: harvest.Schema{
					{Name: "name", Selector: ".m-headline"},
					{Name: "description", Selector: ".m-desc > p:first-child"},
					{Name: "date", Selector: ".m-info-txt"},
					{Name: "pdf_link", Selector: ".m-desc a[href*='.pdf']", Attribute: "href"},
				},
				Pages:        pages,
				NextSelector: "a.next",
			},
			DateField: "date",
			LinkField: "pdf_link",
		},
	})
	require.NoError(t, err)
	return preset
}

func newSession(t *testing.T) *static.Session {
	t.Helper()
	client, err := restyutil.NewClient(restyutil.ClientOptions{})
	require.NoError(t, err)
	return static.New(client)
}

func TestScrapeEndToEnd(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/pipeline")
	defer cleanup()

	ctx := context.Background()
	srv := newCatalogServer(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "whitepapers.json")
	rawOut := filepath.Join(dir, "raw.json")

	report, err := Scrape(ctx, newSession(t), testPreset(t, srv, 2), ScrapeOptions{Out: out, RawOut: rawOut})
	require.NoError(t, err)
	require.True(t, report.Complete)
	require.Equal(t, 2, report.Pages)
	require.Equal(t, 4, report.Harvested)
	require.Equal(t, cleaner.Report{Accepted: 3, Rejected: 1}, report.Clean)
	require.Len(t, report.Rejections, 1)
	require.Equal(t, "Serverless Lens", report.Rejections[0].Record.Label())

	records, err := dataset.Read[cleaner.Record](out)
	require.NoError(t, err)
	var got [][3]any
	for _, r := range records {
		name, _ := r.Get("name")
		got = append(got, [3]any{name, r.Year, r.Month})
	}
	expected := [][3]any{
		{"Security Pillar", 2021, 3},
		{"Cost Optimization", 2020, 7},
		{"Reliability Pillar", 2021, 3},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatal(diff)
	}

	raw, err := os.ReadFile(rawOut)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"description": "No Description"`)

	// the links are relative to the catalog, resolve them the way a
	// browser would before downloading
	client, err := restyutil.NewClient(restyutil.ClientOptions{BaseUrl: srv.URL})
	require.NoError(t, err)
	d, err := download.NewDownloader(client, download.Options{})
	require.NoError(t, err)

	dlReport, err := Download(ctx, d, out, "pdf_link", filepath.Join(dir, "docs"))
	require.NoError(t, err)
	require.Equal(t, 1, dlReport.Failed)
	require.Equal(t, 1, dlReport.ByBucket["2020"][download.StatusFailed])
	require.Equal(t, 2, dlReport.ByBucket["2021"][download.StatusDownloaded])
	require.FileExists(t, filepath.Join(dir, "docs", "2021", "1.pdf"))
	require.FileExists(t, filepath.Join(dir, "docs", "2021", "2.pdf"))
	require.NoFileExists(t, filepath.Join(dir, "docs", "2020", "1.pdf"))
	require.NoDirExists(t, filepath.Join(dir, "docs", "2022"))
}

func TestDownloadSkipsPlaceholderLinks(t *testing.T) {
	ctx := context.Background()
	srv := newCatalogServer(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "raw.json")

	schema := harvest.Schema{
		{Name: "name", Selector: ".m-headline", Sentinel: "No Headline"},
		{Name: "pdf_link", Selector: "a", Attribute: "href", Sentinel: "No PDF Link"},
	}
	raw := []harvest.RawRecord{
		{Fields: []harvest.FieldValue{
			{Name: "name", Value: harvest.Text("Security Pillar"), Sentinel: schema[0].Placeholder()},
			{Name: "pdf_link", Sentinel: schema[1].Placeholder()},
		}},
		{Fields: []harvest.FieldValue{
			{Name: "name", Value: harvest.Text("Serverless Lens"), Sentinel: schema[0].Placeholder()},
			{Name: "pdf_link", Value: harvest.Text(srv.URL + "/docs/serverless-lens.pdf"), Sentinel: schema[1].Placeholder()},
		}},
	}
	require.NoError(t, dataset.Write(in, raw))

	client, err := restyutil.NewClient(restyutil.ClientOptions{})
	require.NoError(t, err)
	d, err := download.NewDownloader(client, download.Options{
		Placeholders: sources.Placeholders("pdf_link", nil),
	})
	require.NoError(t, err)

	report, err := Download(ctx, d, in, "pdf_link", filepath.Join(dir, "docs"))
	require.NoError(t, err)
	require.Zero(t, report.Failed)
	require.Equal(t, download.StatusSkipped, report.Outcomes[0].Status)
	require.Equal(t, download.StatusDownloaded, report.Outcomes[1].Status)
	require.FileExists(t, filepath.Join(dir, "docs", "undated", "1.pdf"))
}

func TestScrapeWritesPartialOnFault(t *testing.T) {
	ctx := context.Background()
	srv := newCatalogServer(t)
	out := filepath.Join(t.TempDir(), "whitepapers.json")

	// the catalog only has two pages, so advancing past the second fails
	report, err := Scrape(ctx, newSession(t), testPreset(t, srv, 3), ScrapeOptions{Out: out})
	require.ErrorIs(t, err, harvest.ErrNavigation)
	require.False(t, report.Complete)
	require.Equal(t, PartialPath(out), report.PartialOut)
	require.NoFileExists(t, out)

	partial, err := dataset.Read[cleaner.Record](report.PartialOut)
	require.NoError(t, err)
	require.Len(t, partial, 4)
}
