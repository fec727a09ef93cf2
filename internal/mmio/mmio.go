// Package mmio reads and writes the Matrix Market exchange format used to
// feed linear systems into the solvers: coordinate-format sparse matrices
// (A) and array-format dense vectors (b, x).
//
// Only "matrix coordinate real general" and "matrix array real general"
// headers are supported. Indices in coordinate files are 1-based, per the
// format.
package mmio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Banner is the first token every Matrix Market file must start with.
const Banner = "%%MatrixMarket"

// Entry is one nonzero of a coordinate-format matrix, 0-based.
type Entry struct {
	Row, Col int
	Val      float64
}

// Matrix is a sparse matrix read from a coordinate-format file.
type Matrix struct {
	Rows, Cols int
	Entries    []Entry
}

// ReadMatrix parses a coordinate-format real general matrix.
func ReadMatrix(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "mmio: open matrix")
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if err := readBanner(sc, path, "coordinate"); err != nil {
		return nil, err
	}

	dims, err := nextDataLine(sc, path)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(dims)
	if len(fields) != 3 {
		return nil, errors.Errorf("mmio: %s: malformed size line %q", path, dims)
	}
	rows, err1 := strconv.Atoi(fields[0])
	cols, err2 := strconv.Atoi(fields[1])
	nnz, err3 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, errors.Errorf("mmio: %s: malformed size line %q", path, dims)
	}

	m := &Matrix{Rows: rows, Cols: cols, Entries: make([]Entry, 0, nnz)}
	for len(m.Entries) < nnz {
		line, err := nextDataLine(sc, path)
		if err != nil {
			return nil, errors.Wrapf(err, "mmio: %s: after %d of %d entries", path, len(m.Entries), nnz)
		}
		f := strings.Fields(line)
		if len(f) != 3 {
			return nil, errors.Errorf("mmio: %s: malformed entry %q", path, line)
		}
		i, err1 := strconv.Atoi(f[0])
		j, err2 := strconv.Atoi(f[1])
		v, err3 := strconv.ParseFloat(f[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, errors.Errorf("mmio: %s: malformed entry %q", path, line)
		}
		if i < 1 || i > rows || j < 1 || j > cols {
			return nil, errors.Errorf("mmio: %s: entry (%d,%d) outside %dx%d", path, i, j, rows, cols)
		}
		m.Entries = append(m.Entries, Entry{Row: i - 1, Col: j - 1, Val: v})
	}
	return m, nil
}

// ReadVector parses an array-format real general n×1 matrix as a vector.
func ReadVector(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "mmio: open vector")
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if err := readBanner(sc, path, "array"); err != nil {
		return nil, err
	}

	dims, err := nextDataLine(sc, path)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(dims)
	if len(fields) != 2 {
		return nil, errors.Errorf("mmio: %s: malformed size line %q", path, dims)
	}
	n, err1 := strconv.Atoi(fields[0])
	cols, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return nil, errors.Errorf("mmio: %s: malformed size line %q", path, dims)
	}
	if cols != 1 {
		return nil, errors.Errorf("mmio: %s: expected a single column, got %d", path, cols)
	}

	vec := make([]float64, 0, n)
	for len(vec) < n {
		line, err := nextDataLine(sc, path)
		if err != nil {
			return nil, errors.Wrapf(err, "mmio: %s: after %d of %d values", path, len(vec), n)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			return nil, errors.Errorf("mmio: %s: malformed value %q", path, line)
		}
		vec = append(vec, v)
	}
	return vec, nil
}

// WriteVector writes vec as an array-format real general n×1 matrix.
func WriteVector(path string, vec []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "mmio: create vector")
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s matrix array real general\n", Banner)
	fmt.Fprintf(w, "%d 1\n", len(vec))
	for _, v := range vec {
		fmt.Fprintf(w, "%.12g\n", v)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "mmio: write %s", path)
	}
	return errors.Wrapf(f.Close(), "mmio: close %s", path)
}

// readBanner consumes the header line and checks the storage layout.
func readBanner(sc *bufio.Scanner, path, layout string) error {
	if !sc.Scan() {
		return errors.Errorf("mmio: %s: empty file", path)
	}
	fields := strings.Fields(sc.Text())
	if len(fields) < 4 || fields[0] != Banner {
		return errors.Errorf("mmio: %s: missing %s banner", path, Banner)
	}
	if fields[1] != "matrix" || fields[2] != layout {
		return errors.Errorf("mmio: %s: expected matrix %s, got %s %s", path, layout, fields[1], fields[2])
	}
	if fields[3] != "real" {
		return errors.Errorf("mmio: %s: only real values supported, got %s", path, fields[3])
	}
	return nil
}

// nextDataLine returns the next non-comment, non-blank line.
func nextDataLine(sc *bufio.Scanner, path string) (string, error) {
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		return line, nil
	}
	if err := sc.Err(); err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}
	return "", errors.Errorf("unexpected end of %s", path)
}
