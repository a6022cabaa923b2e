// Package extract decompresses verified archive files in place.
package extract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
)

// GzipSuffix is the compressed-archive suffix handled by this stage.
const GzipSuffix = ".gz"

// Decompressor turns a compressed file into its decompressed form,
// returning the path of the output file. Implementations consume the
// input file on success (gunzip semantics).
type Decompressor interface {
	Decompress(path string) (string, error)
}

// GzipDecompressor decompresses .gz files using a parallel gzip reader.
// Genomic sequence archives are large enough that the readahead
// decompression pays for itself.
type GzipDecompressor struct{}

// Decompress inflates the .gz file at path next to itself, dropping the
// suffix from the output name, and removes the compressed input on
// success.
func (GzipDecompressor) Decompress(path string) (string, error) {
	if !strings.HasSuffix(path, GzipSuffix) {
		return "", fmt.Errorf("not a %s file: %s", GzipSuffix, path)
	}
	outPath := strings.TrimSuffix(path, GzipSuffix)

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	gz, err := pgzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("read gzip header: %w", err)
	}
	defer gz.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}

	if _, err := io.Copy(out, gz); err != nil {
		out.Close()
		os.Remove(outPath)
		return "", fmt.Errorf("decompress: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("close output: %w", err)
	}

	in.Close()
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove archive: %w", err)
	}
	return outPath, nil
}

// DecompressAll decompresses every *.gz file directly under dir with d,
// returning the output paths. The first failure aborts: a verified
// archive that cannot be inflated means the record's data cannot be
// trusted as complete.
func DecompressAll(d Decompressor, dir string) ([]string, error) {
	archives, err := filepath.Glob(filepath.Join(dir, "*"+GzipSuffix))
	if err != nil {
		return nil, fmt.Errorf("glob archives: %w", err)
	}

	var outputs []string
	for _, archive := range archives {
		outPath, err := d.Decompress(archive)
		if err != nil {
			return outputs, fmt.Errorf("extract %s: %w", filepath.Base(archive), err)
		}
		outputs = append(outputs, outPath)
	}
	return outputs, nil
}
