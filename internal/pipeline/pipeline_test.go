package pipeline

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // mirrors the manifest algorithm
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/pgzip"

	"github.com/genomekit/refseqdl/internal/catalog"
	"github.com/genomekit/refseqdl/internal/fetch"
)

// testAssembly is one assembly served by the fake catalog server.
type testAssembly struct {
	accession string
	name      string
	level     string
	status    string
	category  string

	// assets maps derived filename to served bytes. Filenames absent
	// here return 404.
	assets map[string][]byte

	// manifest is the served md5checksums.txt body.
	manifest string
}

func gzipBytes(t *testing.T, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := pgzip.NewWriter(&buf)
	if _, err := w.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func md5hex(content []byte) string {
	sum := md5.Sum(content) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// newTestAssembly builds an assembly with all four assets and a
// complete, consistent manifest.
func newTestAssembly(t *testing.T, accession, name, level, status, category string) *testAssembly {
	t.Helper()
	a := &testAssembly{
		accession: accession,
		name:      name,
		level:     level,
		status:    status,
		category:  category,
		assets:    make(map[string][]byte),
	}

	contents := map[string][]byte{
		"assembly_report.txt": []byte("# Assembly report for " + accession + "\n"),
		"assembly_stats.txt":  []byte("# Assembly stats for " + accession + "\n"),
		"genomic.fna.gz":      gzipBytes(t, []byte(">chr1\nACGTACGT\n")),
		"genomic.gff.gz":      gzipBytes(t, []byte("##gff-version 3\n")),
	}

	var manifest strings.Builder
	for _, filename := range fetch.AssetFilenames(accession, name) {
		for suffix, content := range contents {
			if strings.HasSuffix(filename, suffix) {
				a.assets[filename] = content
				fmt.Fprintf(&manifest, "%s  ./%s\n", md5hex(content), filename)
			}
		}
	}
	a.manifest = manifest.String()
	return a
}

// catalogServer serves a catalog plus per-assembly manifests and
// assets, and records how many per-record requests it saw.
type catalogServer struct {
	srv        *httptest.Server
	assemblies []*testAssembly

	mu             sync.Mutex
	recordRequests int
}

func newCatalogServer(t *testing.T, assemblies []*testAssembly) *catalogServer {
	t.Helper()
	cs := &catalogServer{assemblies: assemblies}
	cs.srv = httptest.NewServer(http.HandlerFunc(cs.handle))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *catalogServer) catalogURL() string {
	return cs.srv.URL + "/assembly_summary.txt"
}

func (cs *catalogServer) catalogText() string {
	var b strings.Builder
	b.WriteString("# See assembly_summary_readme.txt for a description of the columns.\n")
	b.WriteString("#assembly_accession\tasm_name\tassembly_level\tversion_status\trefseq_category\tftp_path\n")
	for _, a := range cs.assemblies {
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%s\t%s/genomes/%s\n",
			a.accession, a.name, a.level, a.status, a.category, cs.srv.URL, a.accession)
	}
	return b.String()
}

func (cs *catalogServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/assembly_summary.txt" {
		fmt.Fprint(w, cs.catalogText())
		return
	}

	if rest, ok := strings.CutPrefix(r.URL.Path, "/genomes/"); ok {
		cs.mu.Lock()
		cs.recordRequests++
		cs.mu.Unlock()

		accession, filename, ok := strings.Cut(rest, "/")
		if !ok {
			http.NotFound(w, r)
			return
		}
		for _, a := range cs.assemblies {
			if a.accession != accession {
				continue
			}
			if filename == "md5checksums.txt" {
				fmt.Fprint(w, a.manifest)
				return
			}
			if content, ok := a.assets[filename]; ok {
				w.Write(content)
				return
			}
		}
	}
	http.NotFound(w, r)
}

func (cs *catalogServer) recordRequestCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.recordRequests
}

func newTestPipeline(t *testing.T, cs *catalogServer, outdir string) *Pipeline {
	t.Helper()
	p, err := New(Options{
		CatalogURL:   cs.catalogURL(),
		Outdir:       outdir,
		Filter:       catalog.DefaultFilter(),
		MinFreeBytes: -1,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p
}

func TestRunEndToEnd(t *testing.T) {
	matching := newTestAssembly(t, "GCF_000005845.2", "ASM584v2", "Complete Genome", "latest", "representative genome")
	excluded := newTestAssembly(t, "GCF_000009605.1", "ASM960v1", "Contig", "latest", "na")
	cs := newCatalogServer(t, []*testAssembly{matching, excluded})
	outdir := t.TempDir()

	summary, err := newTestPipeline(t, cs, outdir).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if summary.TotalRecords != 2 || summary.FilteredRecords != 1 || summary.Completed != 1 {
		t.Errorf("summary = %+v, want 2 total / 1 filtered / 1 completed", summary)
	}

	// The filtered snapshot holds exactly the matching row.
	data, err := os.ReadFile(filepath.Join(outdir, FilteredSnapshotFilename))
	if err != nil {
		t.Fatalf("read filtered snapshot: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("filtered snapshot has %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[1], "GCF_000005845.2\t") {
		t.Errorf("filtered row = %q", lines[1])
	}

	// The full snapshot is header-only.
	full, err := os.ReadFile(filepath.Join(outdir, FullSnapshotFilename))
	if err != nil {
		t.Fatalf("read full snapshot: %v", err)
	}
	if got := strings.Count(string(full), "\n"); got != 1 {
		t.Errorf("full snapshot has %d lines, want 1 (header only)", got)
	}

	// Only the matching record's directory exists and is complete.
	recordDir := filepath.Join(outdir, "GCF_000005845.2")
	wantFiles := []string{
		"md5checksums.txt",
		"md5checksums_failed.txt",
		CompletionMarker,
		"GCF_000005845.2_ASM584v2_assembly_report.txt",
		"GCF_000005845.2_ASM584v2_assembly_stats.txt",
		"GCF_000005845.2_ASM584v2_genomic.fna",
		"GCF_000005845.2_ASM584v2_genomic.gff",
	}
	for _, name := range wantFiles {
		if _, err := os.Stat(filepath.Join(recordDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if matches, _ := filepath.Glob(filepath.Join(recordDir, "*.gz")); len(matches) != 0 {
		t.Errorf("archives left compressed: %v", matches)
	}
	if _, err := os.Stat(filepath.Join(outdir, "GCF_000009605.1")); !os.IsNotExist(err) {
		t.Error("excluded record should have no directory")
	}

	// The sidecar is empty: everything verified.
	sidecar, err := os.ReadFile(filepath.Join(recordDir, "md5checksums_failed.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sidecar) != 0 {
		t.Errorf("sidecar = %q, want empty", sidecar)
	}
}

func TestRunManifestMissingEntry(t *testing.T) {
	a := newTestAssembly(t, "GCF_000005845.2", "ASM584v2", "Complete Genome", "latest", "reference genome")

	// Drop the fna archive's manifest entry; the file itself is served.
	fnaName := "GCF_000005845.2_ASM584v2_genomic.fna.gz"
	var kept []string
	for _, line := range strings.Split(strings.TrimRight(a.manifest, "\n"), "\n") {
		if !strings.Contains(line, fnaName) {
			kept = append(kept, line)
		}
	}
	a.manifest = strings.Join(kept, "\n") + "\n"

	cs := newCatalogServer(t, []*testAssembly{a})
	outdir := t.TempDir()

	summary, err := newTestPipeline(t, cs, outdir).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Completed != 1 {
		t.Errorf("Completed = %d, want 1 (verification failure is not fatal)", summary.Completed)
	}

	recordDir := filepath.Join(outdir, "GCF_000005845.2")
	sidecar, err := os.ReadFile(filepath.Join(recordDir, "md5checksums_failed.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(sidecar), fnaName+"\n"; got != want {
		t.Errorf("sidecar = %q, want %q", got, want)
	}

	// The unverifiable archive is quarantined; the other three assets
	// survive, with the remaining archive extracted.
	if _, err := os.Stat(filepath.Join(recordDir, fnaName)); !os.IsNotExist(err) {
		t.Error("unverifiable archive should be removed")
	}
	if _, err := os.Stat(filepath.Join(recordDir, "GCF_000005845.2_ASM584v2_genomic.fna")); !os.IsNotExist(err) {
		t.Error("quarantined archive must not be extracted")
	}
	for _, name := range []string{
		"GCF_000005845.2_ASM584v2_assembly_report.txt",
		"GCF_000005845.2_ASM584v2_assembly_stats.txt",
		"GCF_000005845.2_ASM584v2_genomic.gff",
	} {
		if _, err := os.Stat(filepath.Join(recordDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestRunChecksumMismatchQuarantine(t *testing.T) {
	a := newTestAssembly(t, "GCF_1", "ASM1", "Complete Genome", "latest", "reference genome")

	// Serve different bytes than the manifest promises for the report.
	reportName := "GCF_1_ASM1_assembly_report.txt"
	a.assets[reportName] = []byte("tampered content\n")

	cs := newCatalogServer(t, []*testAssembly{a})
	outdir := t.TempDir()

	summary, err := newTestPipeline(t, cs, outdir).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Completed != 1 {
		t.Errorf("Completed = %d, want 1", summary.Completed)
	}

	recordDir := filepath.Join(outdir, "GCF_1")
	if _, err := os.Stat(filepath.Join(recordDir, reportName)); !os.IsNotExist(err) {
		t.Error("mismatched file should be quarantined")
	}
	sidecar, err := os.ReadFile(filepath.Join(recordDir, "md5checksums_failed.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(sidecar), reportName+"\n"; got != want {
		t.Errorf("sidecar = %q, want %q", got, want)
	}
}

func TestRunIdempotency(t *testing.T) {
	a := newTestAssembly(t, "GCF_1", "ASM1", "Complete Genome", "latest", "reference genome")
	cs := newCatalogServer(t, []*testAssembly{a})
	outdir := t.TempDir()

	if _, err := newTestPipeline(t, cs, outdir).Run(context.Background()); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	firstCount := cs.recordRequestCount()
	if firstCount == 0 {
		t.Fatal("first run should have fetched record files")
	}

	summary, err := newTestPipeline(t, cs, outdir).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if summary.Skipped != 1 || summary.Completed != 0 {
		t.Errorf("second run summary = %+v, want 1 skipped / 0 completed", summary)
	}
	if got := cs.recordRequestCount(); got != firstCount {
		t.Errorf("second run performed %d record fetches, want 0", got-firstCount)
	}
}

func TestRunReprocessesIncompleteDir(t *testing.T) {
	a := newTestAssembly(t, "GCF_1", "ASM1", "Complete Genome", "latest", "reference genome")
	cs := newCatalogServer(t, []*testAssembly{a})
	outdir := t.TempDir()

	// Simulate a crashed run: a record directory without the marker.
	recordDir := filepath.Join(outdir, "GCF_1")
	if err := os.MkdirAll(recordDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(recordDir, "partial.tmp"), []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	summary, err := newTestPipeline(t, cs, outdir).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Completed != 1 || summary.Skipped != 0 {
		t.Errorf("summary = %+v, want record reprocessed", summary)
	}
	if _, err := os.Stat(filepath.Join(recordDir, "partial.tmp")); !os.IsNotExist(err) {
		t.Error("stale partial file should have been removed")
	}
	if _, err := os.Stat(filepath.Join(recordDir, CompletionMarker)); err != nil {
		t.Errorf("record should now be complete: %v", err)
	}
}

func TestRunTransportFailureIsolated(t *testing.T) {
	ok := newTestAssembly(t, "GCF_1", "ASM1", "Complete Genome", "latest", "reference genome")
	broken := newTestAssembly(t, "GCF_2", "ASM2", "Complete Genome", "latest", "reference genome")
	// One asset of the broken assembly 404s.
	delete(broken.assets, "GCF_2_ASM2_genomic.gff.gz")

	cs := newCatalogServer(t, []*testAssembly{ok, broken})
	outdir := t.TempDir()

	summary, err := newTestPipeline(t, cs, outdir).Run(context.Background())
	if err == nil {
		t.Fatal("Run() should report the failed record")
	}
	if summary.Completed != 1 {
		t.Errorf("Completed = %d, want 1 (healthy record unaffected)", summary.Completed)
	}
	if _, failed := summary.Failed["GCF_2"]; !failed {
		t.Errorf("Failed = %v, want GCF_2 recorded", summary.Failed)
	}
	// The failed record carries no completion marker, so a later run
	// retries it.
	if _, err := os.Stat(filepath.Join(outdir, "GCF_2", CompletionMarker)); !os.IsNotExist(err) {
		t.Error("failed record must not be marked complete")
	}
}

func TestRunLockHeld(t *testing.T) {
	cs := newCatalogServer(t, nil)
	outdir := t.TempDir()

	lock, err := acquireRunLock(outdir)
	if err != nil {
		t.Fatalf("acquireRunLock() error: %v", err)
	}
	defer lock.release()

	_, err = newTestPipeline(t, cs, outdir).Run(context.Background())
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("Run() error = %v, want ErrLockHeld", err)
	}
}

func TestRunFilterFieldMissingAborts(t *testing.T) {
	a := newTestAssembly(t, "GCF_1", "ASM1", "Complete Genome", "latest", "reference genome")
	cs := newCatalogServer(t, []*testAssembly{a})
	outdir := t.TempDir()

	p, err := New(Options{
		CatalogURL:   cs.catalogURL(),
		Outdir:       outdir,
		Filter:       catalog.FilterSpec{"no_such_column": catalog.Equals("x")},
		MinFreeBytes: -1,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Run(context.Background())
	var missing *catalog.FieldMissingError
	if !errors.As(err, &missing) {
		t.Errorf("Run() error = %v, want FieldMissingError", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{Outdir: "/tmp/x"}); err == nil {
		t.Error("New() without catalog URL should fail")
	}
	if _, err := New(Options{CatalogURL: "https://x"}); err == nil {
		t.Error("New() without outdir should fail")
	}
}
