package helpers

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSmartGrid(t *testing.T) {
	cases := []struct {
		n, rows, cols int
	}{
		{0, 1, 1},
		{1, 1, 1},
		{2, 1, 2},
		{3, 1, 3},
		{4, 2, 2},
		{5, 2, 3},
		{6, 2, 3},
		{9, 3, 3},
		{10, 3, 4},
		{16, 4, 4},
	}
	for _, c := range cases {
		rows, cols := GetSmartGrid(c.n)
		assert.Equal(t, c.rows, rows, "rows for %d", c.n)
		assert.Equal(t, c.cols, cols, "cols for %d", c.n)
		assert.GreaterOrEqual(t, rows*cols, c.n)
	}
}

func TestIsqrt(t *testing.T) {
	assert.Equal(t, 0, isqrt(-4))
	assert.Equal(t, 0, isqrt(0))
	assert.Equal(t, 1, isqrt(3))
	assert.Equal(t, 3, isqrt(10))
	assert.Equal(t, 12, isqrt(144))
}

func TestParsePIDs(t *testing.T) {
	lsof := "123\n 456 \nfoo\n0\n"
	pids := parsePIDs(lsof, lsofLine)
	assert.Equal(t, map[int]struct{}{123: {}, 456: {}}, pids)

	fuser := "/dev/video0:  1201m  88"
	pids = parsePIDs(fuser, fuserField)
	assert.Contains(t, pids, 88)

	assert.Empty(t, parsePIDs("", regexp.MustCompile(`(\d+)`)))
}

func TestDeviceHoldersMissingPath(t *testing.T) {
	assert.Empty(t, DeviceHolders("/nonexistent/video-node"))
}
