package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ManifestFilename is the checksum manifest published alongside every
// assembly's data files.
const ManifestFilename = "md5checksums.txt"

// AssetSuffixes are the fixed data files fetched for every assembly:
// the textual report and stats, and the gzipped sequence and feature
// archives.
var AssetSuffixes = []string{
	"assembly_report.txt",
	"assembly_stats.txt",
	"genomic.fna.gz",
	"genomic.gff.gz",
}

var underscoreRuns = regexp.MustCompile(`_+`)

// NormalizeAssemblyName rewrites an assembly display name into the form
// NCBI uses in data filenames: space, '(', ')' and '/' each become an
// underscore, and runs of consecutive underscores collapse to one.
// Normalization is idempotent.
func NormalizeAssemblyName(name string) string {
	for _, c := range []string{" ", "(", ")", "/"} {
		name = strings.ReplaceAll(name, c, "_")
	}
	if strings.Contains(name, "__") {
		name = underscoreRuns.ReplaceAllString(name, "_")
	}
	return name
}

// AssetFilenames derives the four expected data filenames for an
// assembly. The derivation must match the names in the assembly's
// checksum manifest exactly or verification cannot succeed.
func AssetFilenames(accession, asmName string) []string {
	normalized := NormalizeAssemblyName(asmName)
	names := make([]string, 0, len(AssetSuffixes))
	for _, suffix := range AssetSuffixes {
		names = append(names, strings.Join([]string{accession, normalized, suffix}, "_"))
	}
	return names
}

// Fetcher retrieves and persists one assembly's files.
type Fetcher struct {
	downloader *Downloader
}

// NewFetcher creates a fetcher backed by the given downloader.
func NewFetcher(downloader *Downloader) *Fetcher {
	return &Fetcher{downloader: downloader}
}

// CreateRecordDir creates the assembly's output directory
// <root>/<accession>. It fails if the directory already exists: the
// caller decides before calling whether the record is already done.
func (f *Fetcher) CreateRecordDir(root, accession string) (string, error) {
	dir := filepath.Join(root, accession)
	if err := os.Mkdir(dir, 0755); err != nil {
		return "", fmt.Errorf("create record directory: %w", err)
	}
	return dir, nil
}

// FetchManifest retrieves the assembly's checksum manifest from
// basePath, persists it verbatim into dir, and returns the raw bytes.
func (f *Fetcher) FetchManifest(ctx context.Context, basePath, dir string) ([]byte, error) {
	url := JoinURL(basePath, ManifestFilename)
	body, err := f.downloader.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFilename)
	if err := os.WriteFile(path, body, 0644); err != nil {
		return nil, fmt.Errorf("persist manifest: %w", err)
	}
	return body, nil
}

// FetchAsset retrieves one derived asset file from basePath into dir
// and returns the persisted path.
func (f *Fetcher) FetchAsset(ctx context.Context, basePath, dir, filename string) (string, error) {
	url := JoinURL(basePath, filename)
	path := filepath.Join(dir, filename)
	if err := f.downloader.DownloadToFile(ctx, url, path); err != nil {
		return "", fmt.Errorf("fetch %s: %w", filename, err)
	}
	return path, nil
}
