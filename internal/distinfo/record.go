package distinfo

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RecordRow is one line of a RECORD file. Hash and Size are empty for the
// RECORD's own row.
type RecordRow struct {
	Path string
	Hash string
	Size string
}

// Record accumulates the RECORD of a wheel as files are written.
type Record struct {
	rows []RecordRow
}

// Add records a file written at path with the given content.
func (r *Record) Add(path string, data []byte) {
	r.rows = append(r.rows, RecordRow{Path: path, Hash: Hash(data), Size: strconv.Itoa(len(data))})
}

// Rows returns the rows added so far.
func (r *Record) Rows() []RecordRow {
	return append([]RecordRow(nil), r.rows...)
}

// Bytes renders the RECORD, ending with its own row at recordPath.
func (r *Record) Bytes(recordPath string) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range r.rows {
		w.Write([]string{row.Path, row.Hash, row.Size})
	}
	w.Write([]string{recordPath, "", ""})
	w.Flush()
	return buf.Bytes()
}

// Hash returns the RECORD hash of data: "sha256=" and the urlsafe base64
// digest without padding.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256=" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// ParseRecord reads a RECORD file.
func ParseRecord(r io.Reader) ([]RecordRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var rows []RecordRow
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading RECORD: %w", err)
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("reading RECORD: line has %d fields, want 3", len(fields))
		}
		rows = append(rows, RecordRow{Path: fields[0], Hash: fields[1], Size: fields[2]})
	}
	return rows, nil
}

// Verify checks data against the row's hash and size.
func (row RecordRow) Verify(data []byte) error {
	if row.Hash == "" {
		return nil
	}
	if got := Hash(data); got != row.Hash {
		return fmt.Errorf("%s: hash %s, RECORD says %s", row.Path, got, row.Hash)
	}
	if row.Size != "" && row.Size != strconv.Itoa(len(data)) {
		return fmt.Errorf("%s: size %d, RECORD says %s", row.Path, len(data), row.Size)
	}
	return nil
}

// WriteDir writes files into dir, creating it as needed.
func WriteDir(dir string, files []File) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}
	return nil
}
