// Package manifest parses NCBI md5checksums.txt files.
//
// A manifest line has the form
//
//	<md5 hex digest>  ./<relative filename>
//
// Lines with any other token count are skipped. The leading "./" is
// stripped so filenames can be matched against derived asset names.
package manifest

import "strings"

// Parse builds the filename-to-checksum mapping from raw manifest text.
// On duplicate filenames the last occurrence wins.
func Parse(text string) map[string]string {
	checksums := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		filename := strings.TrimPrefix(fields[1], "./")
		checksums[filename] = fields[0]
	}
	return checksums
}
