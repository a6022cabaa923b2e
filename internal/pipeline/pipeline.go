// Package pipeline wires catalog retrieval, filtering, per-assembly
// download, verification and extraction into a single sequential run.
//
// A run fetches the catalog, writes the two catalog snapshots, filters
// the records, and then processes one assembly at a time: create the
// record directory, fetch the checksum manifest, fetch and verify each
// asset, write the failure sidecar, decompress the verified archives,
// and finally write a completion marker. Records whose marker is
// already present are skipped; a directory without a marker is the
// residue of an interrupted run and is torn down and reprocessed.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/genomekit/refseqdl/internal/catalog"
	"github.com/genomekit/refseqdl/internal/extract"
	"github.com/genomekit/refseqdl/internal/fetch"
	"github.com/genomekit/refseqdl/internal/manifest"
	"github.com/genomekit/refseqdl/internal/preflight"
	"github.com/genomekit/refseqdl/internal/verify"
)

const (
	// FullSnapshotFilename records the catalog column order of the run.
	FullSnapshotFilename = "assembly_summary_full.tsv"
	// FilteredSnapshotFilename is the tab-separated dump of the records
	// that passed filtering.
	FilteredSnapshotFilename = "assembly_summary_filtered.tsv"
	// CompletionMarker is written into a record directory only after
	// every asset has been verified and extracted. Its absence marks
	// the directory as incomplete.
	CompletionMarker = ".refseqdl-complete"
)

// Options configures a pipeline.
type Options struct {
	// CatalogURL is the assembly catalog endpoint.
	CatalogURL string

	// Outdir is the output root. Created if absent.
	Outdir string

	// Filter selects the records to download. Nil means no filtering.
	Filter catalog.FilterSpec

	// Logger receives structured run events. Nil discards them.
	Logger *slog.Logger

	// Downloader performs the HTTP fetches. Nil uses the default.
	Downloader *fetch.Downloader

	// Decompressor handles the extraction stage. Nil uses gzip.
	Decompressor extract.Decompressor

	// MinFreeBytes is the disk preflight floor. Zero uses the default;
	// negative disables the check.
	MinFreeBytes int64
}

// Pipeline runs the end-to-end fetch-filter-verify-extract flow.
type Pipeline struct {
	catalogURL   string
	outdir       string
	filter       catalog.FilterSpec
	logger       *slog.Logger
	fetcher      *fetch.Fetcher
	downloader   *fetch.Downloader
	decompressor extract.Decompressor
	minFreeBytes int64
}

// New creates a pipeline from options.
func New(opts Options) (*Pipeline, error) {
	if opts.CatalogURL == "" {
		return nil, fmt.Errorf("catalog URL is required")
	}
	if opts.Outdir == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	downloader := opts.Downloader
	if downloader == nil {
		downloader = fetch.NewDownloader()
	}
	decompressor := opts.Decompressor
	if decompressor == nil {
		decompressor = extract.GzipDecompressor{}
	}
	minFree := opts.MinFreeBytes
	if minFree == 0 {
		minFree = preflight.DefaultMinFreeBytes
	}

	return &Pipeline{
		catalogURL:   opts.CatalogURL,
		outdir:       opts.Outdir,
		filter:       opts.Filter,
		logger:       logger,
		fetcher:      fetch.NewFetcher(downloader),
		downloader:   downloader,
		decompressor: decompressor,
		minFreeBytes: minFree,
	}, nil
}

// Summary aggregates the outcome of one run.
type Summary struct {
	// TotalRecords is the number of well-formed catalog rows.
	TotalRecords int
	// FilteredRecords is the number of rows that passed filtering.
	FilteredRecords int
	// Skipped counts records already complete from a previous run.
	Skipped int
	// Completed counts records fully processed in this run.
	Completed int
	// Failed maps accession to the error that stopped its processing.
	Failed map[string]error
}

// Run executes the whole pipeline. Per-record fetch and extraction
// failures are isolated: the failing record is recorded in the summary
// and the run moves on. Catalog retrieval, parsing, filtering, and
// snapshot writes are fatal for the run.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	if err := os.MkdirAll(p.outdir, 0755); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}

	lock, err := acquireRunLock(p.outdir)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	if err := p.checkDiskSpace(ctx); err != nil {
		return nil, err
	}

	body, err := p.downloader.Get(ctx, p.catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	summary, err := catalog.Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := catalog.WriteFullSnapshot(filepath.Join(p.outdir, FullSnapshotFilename), summary.Header); err != nil {
		return nil, err
	}

	filtered, err := p.filter.Apply(summary.Records)
	if err != nil {
		return nil, fmt.Errorf("filter catalog: %w", err)
	}

	if err := catalog.WriteFilteredSnapshot(filepath.Join(p.outdir, FilteredSnapshotFilename), summary.Header, filtered); err != nil {
		return nil, err
	}

	result := &Summary{
		TotalRecords:    len(summary.Records),
		FilteredRecords: len(filtered),
		Failed:          make(map[string]error),
	}

	for _, record := range filtered {
		accession := record.Accession()
		recordDir := filepath.Join(p.outdir, accession)

		done, err := p.recordDone(recordDir)
		if err != nil {
			return result, fmt.Errorf("check record %s: %w", accession, err)
		}
		if done {
			result.Skipped++
			p.logger.Debug("record already complete", "assembly_accession", accession)
			continue
		}

		if err := p.processRecord(ctx, record, recordDir); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed[accession] = err
			p.logger.Error("record failed",
				"assembly_accession", accession,
				"error", err)
			continue
		}
		result.Completed++
	}

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("%d of %d records failed", len(result.Failed), result.FilteredRecords)
	}
	return result, nil
}

// recordDone reports whether the record directory exists and carries
// the completion marker. A directory without the marker was left by an
// interrupted run; it is removed so the record can be reprocessed.
func (p *Pipeline) recordDone(recordDir string) (bool, error) {
	if _, err := os.Stat(recordDir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if _, err := os.Stat(filepath.Join(recordDir, CompletionMarker)); err == nil {
		return true, nil
	}
	p.logger.Warn("removing incomplete record directory", "dir", recordDir)
	if err := os.RemoveAll(recordDir); err != nil {
		return false, fmt.Errorf("remove incomplete directory: %w", err)
	}
	return false, nil
}

// processRecord runs the per-record flow: directory creation, manifest
// fetch, asset fetch and verification, sidecar write, extraction, and
// the completion marker.
func (p *Pipeline) processRecord(ctx context.Context, record catalog.Record, recordDir string) error {
	accession := record.Accession()
	basePath := record[catalog.FTPPathField]
	if basePath == "" {
		return fmt.Errorf("record has no %s", catalog.FTPPathField)
	}
	asmName, ok := record[catalog.NameField]
	if !ok {
		return fmt.Errorf("record has no %s", catalog.NameField)
	}

	dir, err := p.fetcher.CreateRecordDir(p.outdir, accession)
	if err != nil {
		return err
	}

	rawManifest, err := p.fetcher.FetchManifest(ctx, basePath, dir)
	if err != nil {
		return err
	}
	verifier := verify.NewVerifier(manifest.Parse(string(rawManifest)))

	var failed []string
	for _, filename := range fetch.AssetFilenames(accession, asmName) {
		path, err := p.fetcher.FetchAsset(ctx, basePath, dir, filename)
		if err != nil {
			return err
		}
		verdict, err := verifier.VerifyFile(path, filename)
		if err != nil {
			return err
		}
		if verdict != verify.Verified {
			p.logger.Warn("asset failed verification",
				"assembly_accession", accession,
				"filename", filename,
				"verdict", verdict.String())
			failed = append(failed, filename)
		}
	}

	if err := verify.WriteFailedSidecar(dir, failed); err != nil {
		return err
	}

	if _, err := extract.DecompressAll(p.decompressor, dir); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, CompletionMarker), nil, 0644); err != nil {
		return fmt.Errorf("write completion marker: %w", err)
	}

	p.logger.Info("download complete",
		"event_type", "download_complete",
		"assembly_accession", accession,
		"num_md5_checksums_failed", len(failed))
	return nil
}

// checkDiskSpace fails the run when the output root's filesystem is
// below the free-space floor. Detection failures are non-fatal: runs
// proceed with a warning on filesystems the probe cannot query.
func (p *Pipeline) checkDiskSpace(ctx context.Context) error {
	if p.minFreeBytes < 0 {
		return nil
	}
	free, err := preflight.FreeBytes(ctx, p.outdir)
	if err != nil {
		p.logger.Warn("disk preflight unavailable", "error", err)
		return nil
	}
	if free < uint64(p.minFreeBytes) {
		return fmt.Errorf("insufficient disk space on output root: %d bytes free, need %d", free, p.minFreeBytes)
	}
	return nil
}
