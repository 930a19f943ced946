package feed

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

const sample = `03/06/2024;02:00:00;18500.5;18510;18495;18505;120
03/06/2024;02:01:00;18505;18512.5;18500;18511;80
03/06/2024;02:02:00;bad;18512.5;18500;18511;80
03/06/2024;02:03:00;18511;18500;18520;18511;80
garbage
03/06/2024;02:04:00;18511;18515;18509;18514
`

func TestReadLocalizesAndSkipsMalformed(t *testing.T) {
	chicago, london := mustLoc(t, "America/Chicago"), mustLoc(t, "Europe/London")
	bars, stats, err := Read(strings.NewReader(sample), Options{Source: chicago, Target: london})
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Rows)
	assert.Equal(t, 3, stats.Malformed)
	assert.Equal(t, 3, stats.Kept)
	require.Len(t, bars, 3)

	// 02:00 CDT is 08:00 BST
	assert.Equal(t, 8, bars[0].Time.Hour())
	assert.Equal(t, london, bars[0].Time.Location())
	assert.Equal(t, 18500.5, bars[0].Open)
	assert.Equal(t, int64(120), bars[0].Volume)
	assert.Equal(t, int64(0), bars[2].Volume)
}

func TestReadFiltersYears(t *testing.T) {
	in := "31/12/2023;23:59:00;1;1;1;1\n01/01/2024;00:00:00;2;2;2;2\n"
	years, err := ParseYears("2024")
	require.NoError(t, err)
	bars, stats, err := Read(strings.NewReader(in), Options{Years: years})
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 1, stats.Filtered)
	assert.Equal(t, 2.0, bars[0].Close)
}

func TestReadSortsRows(t *testing.T) {
	in := "03/06/2024;10:01:00;2;2;2;2\n03/06/2024;10:00:00;1;1;1;1\n"
	bars, _, err := Read(strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.0, bars[0].Close)
}

func TestReadUTF16WithBOM(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, err := enc.String("03/06/2024;10:00:00;1;2;0.5;1.5;10\r\n")
	require.NoError(t, err)
	bars, stats, err := Read(bytes.NewReader([]byte(encoded)), Options{})
	require.NoError(t, err)
	assert.Zero(t, stats.Malformed)
	require.Len(t, bars, 1)
	assert.Equal(t, 1.5, bars[0].Close)
}

func TestLocalizeDSTEdges(t *testing.T) {
	chicago := mustLoc(t, "America/Chicago")

	// 2024-03-10 02:30 does not exist in Chicago
	gap := Localize(time.Date(2024, time.March, 10, 2, 30, 0, 0, time.UTC), chicago)
	assert.Equal(t, 3, gap.Hour())
	assert.Equal(t, 0, gap.Minute())

	// 2024-11-03 01:30 happens twice; the CDT occurrence comes first
	amb := Localize(time.Date(2024, time.November, 3, 1, 30, 0, 0, time.UTC), chicago)
	name, off := amb.Zone()
	assert.Equal(t, "CDT", name)
	assert.Equal(t, -5*3600, off)

	plain := Localize(time.Date(2024, time.June, 3, 9, 15, 0, 0, time.UTC), chicago)
	assert.Equal(t, 9, plain.Hour())
}

func TestCSVSourceIsRestartable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dax.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	src := NewCSVSource(path, Options{}, nil)
	for i := 0; i < 2; i++ {
		it, err := src.Open(t.Context())
		require.NoError(t, err)
		n := 0
		for it.Next() {
			n++
		}
		require.NoError(t, it.Err())
		assert.Equal(t, 3, n)
	}
	assert.Equal(t, 3, src.Stats().Malformed)

	_, err := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), Options{}, nil).Open(t.Context())
	assert.Error(t, err)
}
