package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// sniffBytes is how much of the file is inspected to pick a delimiter.
	sniffBytes = 32 * 1024
	// sniffLines is the maximum number of lines compared while sniffing.
	sniffLines = 20
)

// candidateDelimiters are tried in order; ties favour the earlier entry.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// LoadOptions bounds and tunes table loading.
type LoadOptions struct {
	// MaxBytes caps the raw input size. Zero means unlimited.
	MaxBytes int64
	// MaxRows caps the number of data rows. Zero means unlimited.
	MaxRows int
	// Delimiter forces a field separator. Zero means sniff it.
	Delimiter rune
}

// Load parses CSV input into a Dataset. The first non-blank record is the
// header; blank records are skipped. Every failure wraps ErrMalformedInput.
func Load(r io.Reader, opts LoadOptions) (*Dataset, error) {
	br := bufio.NewReaderSize(wrapForParsing(r, opts.MaxBytes), sniffBytes)

	delim := opts.Delimiter
	if delim == 0 {
		head, err := br.Peek(sniffBytes)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, readError(err)
		}
		delim = SniffDelimiter(head)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var header []string
	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readError(err)
		}
		if isEmptyRow(rec) {
			continue
		}
		if header == nil {
			header = rec
			continue
		}
		if opts.MaxRows > 0 && len(records) >= opts.MaxRows {
			return nil, Malformedf("table has more than %d data rows", opts.MaxRows)
		}
		records = append(records, rec)
	}

	if header == nil {
		return nil, Malformedf("file is empty")
	}

	return FromRecords(header, records)
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string, opts LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f, opts)
}

func readError(err error) error {
	if errors.Is(err, ErrMalformedInput) {
		return err
	}
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return Malformedf("line %d: %v", perr.Line, perr.Err)
	}
	return fmt.Errorf("%w: %w", ErrMalformedInput, err)
}

// SniffDelimiter picks the candidate delimiter whose per-line count is
// non-zero and identical across the sampled lines, preferring the highest
// count. If no candidate is consistent the one most frequent in the first
// line wins, and comma is the final fallback.
func SniffDelimiter(sample []byte) rune {
	lines := sampleLines(sample)
	if len(lines) == 0 {
		return ','
	}

	best, bestCount := rune(0), 0
	for _, d := range candidateDelimiters {
		count := countOutsideQuotes(lines[0], d)
		if count == 0 {
			continue
		}
		consistent := true
		for _, l := range lines[1:] {
			if countOutsideQuotes(l, d) != count {
				consistent = false
				break
			}
		}
		if consistent && count > bestCount {
			best, bestCount = d, count
		}
	}
	if best != 0 {
		return best
	}

	for _, d := range candidateDelimiters {
		if count := countOutsideQuotes(lines[0], d); count > bestCount {
			best, bestCount = d, count
		}
	}
	if best != 0 {
		return best
	}
	return ','
}

// sampleLines returns up to sniffLines complete non-blank lines. A trailing
// partial line is dropped unless it is the only one.
func sampleLines(sample []byte) []string {
	complete := sample
	if i := bytes.LastIndexByte(sample, '\n'); i >= 0 && i < len(sample)-1 {
		complete = sample[:i]
	}
	var out []string
	for _, l := range strings.Split(string(complete), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
		if len(out) == sniffLines {
			break
		}
	}
	return out
}

func countOutsideQuotes(line string, d rune) int {
	n, quoted := 0, false
	for _, c := range line {
		switch {
		case c == '"':
			quoted = !quoted
		case c == d && !quoted:
			n++
		}
	}
	return n
}
