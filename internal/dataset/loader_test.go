package dataset

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_InfersTypes(t *testing.T) {
	input := "age,city,score\n31,Oslo,1.5\n,Bergen,2\n45,Oslo,\n"

	ds, err := Load(strings.NewReader(input), LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []Column{
		{Name: "age", Type: Numeric},
		{Name: "city", Type: Categorical},
		{Name: "score", Type: Numeric},
	}, ds.Columns())
	assert.Equal(t, 3, ds.NumRows())
	assert.True(t, ds.At(1, 0).IsMissing())
	assert.Equal(t, Number(31), ds.At(0, 0))
	assert.Equal(t, String("Bergen"), ds.At(1, 1))
	assert.True(t, ds.At(2, 2).IsMissing())
}

func TestLoad_Delimiters(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"comma", "a,b\n1,x\n2,y\n"},
		{"semicolon", "a;b\n1;x\n2;y\n"},
		{"tab", "a\tb\n1\tx\n2\ty\n"},
		{"pipe", "a|b\n1|x\n2|y\n"},
		{"semicolon with decimal commas quoted", "a;b\n\"1,5\";x\n\"2,5\";y\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Load(strings.NewReader(tt.input), LoadOptions{})
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, ds.Names())
			assert.Equal(t, 2, ds.NumRows())
		})
	}
}

func TestLoad_BOMAndInvalidUTF8(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name,v\nca\x80fe,1\n")...)

	ds, err := Load(bytes.NewReader(input), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "v"}, ds.Names())
	assert.Equal(t, "ca?fe", ds.At(0, 0).Text())
}

func TestLoad_RowShapes(t *testing.T) {
	t.Run("short rows are padded", func(t *testing.T) {
		ds, err := Load(strings.NewReader("a,b,c\n1,2\n"), LoadOptions{})
		require.NoError(t, err)
		assert.True(t, ds.At(0, 2).IsMissing())
	})

	t.Run("trailing empty cells are tolerated", func(t *testing.T) {
		ds, err := Load(strings.NewReader("a,b\n1,2,,\n"), LoadOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, ds.NumRows())
	})

	t.Run("wide rows are rejected", func(t *testing.T) {
		_, err := Load(strings.NewReader("a,b\n1,2,3\n"), LoadOptions{})
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("blank lines are skipped", func(t *testing.T) {
		ds, err := Load(strings.NewReader("\n\na,b\n\n1,2\n,\n3,4\n"), LoadOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, ds.NumRows())
	})
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  LoadOptions
	}{
		{"empty file", "", LoadOptions{}},
		{"only blank lines", "\n \n", LoadOptions{}},
		{"duplicate header", "a,a\n1,2\n", LoadOptions{}},
		{"empty header cell", "a,,c\n1,2,3\n", LoadOptions{}},
		{"too many rows", "a\n1\n2\n3\n", LoadOptions{MaxRows: 2}},
		{"too many bytes", "a,b\n1,2\n3,4\n", LoadOptions{MaxBytes: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input), tt.opts)
			assert.ErrorIs(t, err, ErrMalformedInput)
		})
	}
}

func TestLoad_SizeLimitError(t *testing.T) {
	_, err := Load(strings.NewReader(strings.Repeat("a,b\n", 100)), LoadOptions{MaxBytes: 16})
	assert.ErrorIs(t, err, ErrInputTooLarge)
}

func TestLoad_HeaderOnly(t *testing.T) {
	ds, err := Load(strings.NewReader("a,b\n"), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, ds.NumRows())
	assert.Equal(t, Categorical, ds.Column(0).Type)
}

func TestLoad_NonFiniteIsCategorical(t *testing.T) {
	ds, err := Load(strings.NewReader("x\n1\nNaN\n"), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, Categorical, ds.Column(0).Type)
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name   string
		sample string
		want   rune
	}{
		{"empty", "", ','},
		{"single column", "a\n1\n", ','},
		{"inconsistent falls back to first line", "a;b;c\n1;2\n", ';'},
		{"quoted comma ignored", "\"x,y\";z\n\"1,2\";3\n", ';'},
		{"partial last line ignored", "a|b\n1|2\n3|4|5|6", '|'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffDelimiter([]byte(tt.sample)))
		})
	}
}

func TestUTF8Sanitizer_SplitRune(t *testing.T) {
	// "é" is 0xC3 0xA9; feed it one byte at a time.
	src := []byte("caf\xC3\xA9")
	r := newUTF8Sanitizer(&oneByteReader{data: src})

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "café", string(out))
}

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"with BOM", append([]byte{0xEF, 0xBB, 0xBF}, "a,b"...), "a,b"},
		{"without BOM", []byte("a,b"), "a,b"},
		{"only BOM", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial BOM", []byte{0xEF, 0xBB, 'x'}, string([]byte{0xEF, 0xBB, 'x'})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := io.ReadAll(newBOMSkippingReader(bytes.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

type oneByteReader struct {
	data []byte
	pos  int
}

func (o *oneByteReader) Read(p []byte) (int, error) {
	if o.pos >= len(o.data) {
		return 0, io.EOF
	}
	p[0] = o.data[o.pos]
	o.pos++
	return 1, nil
}
