// Package manifest serializes an ordered run result to its destination.
// The pipeline is agnostic to the destination; these writers are the output
// collaborators.
package manifest

import (
	"encoding/csv"
	"encoding/hex"
	"io"
	"os"

	"github.com/eargollo/treesum/internal/hash"
)

// csvHeader matches the established manifest format so existing consumers
// keep parsing it.
var csvHeader = []string{"File Path", "BLAKE2 Hash"}

// WriteCSV writes the manifest to w in enumeration order: a header row, then
// one row per successfully hashed file (relative path, hex digest). Failure
// results are not written; callers report those separately.
func WriteCSV(w io.Writer, results []hash.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range results {
		if r.Failed() {
			continue
		}
		if err := cw.Write([]string{r.RelPath, hex.EncodeToString(r.Digest)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the manifest to the file at path, creating or
// truncating it. Path "-" means stdout.
func WriteCSVFile(path string, results []hash.Result) error {
	if path == "-" {
		return WriteCSV(os.Stdout, results)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
