package splitter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"catalog-harvester/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// writePDF writes a document of blank pages with a correct xref table.
func writePDF(t *testing.T, path string, pages int) {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	object := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	object("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	object(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for range pages {
		object("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestPDFCodec(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/splitter")
	defer cleanup()

	ctx := context.Background()
	dir := t.TempDir()
	writePDF(t, filepath.Join(dir, "7.pdf"), 12)
	writePDF(t, filepath.Join(dir, "8.pdf"), 3)

	codec := NewPDF()
	count, err := codec.PageCount(ctx, filepath.Join(dir, "7.pdf"))
	require.NoError(t, err)
	require.Equal(t, 12, count)

	s, err := New(codec, ".pdf")
	require.NoError(t, err)
	results, err := s.SplitOversized(ctx, dir, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 12, results[0].Pages)

	require.Equal(t, []string{"7_part1.pdf", "7_part2.pdf", "7_part3.pdf", "8.pdf"}, listDir(t, dir))
	for name, expected := range map[string]int{
		"7_part1.pdf": 5,
		"7_part2.pdf": 5,
		"7_part3.pdf": 2,
		"8.pdf":       3,
	} {
		count, err := codec.PageCount(ctx, filepath.Join(dir, name))
		require.NoError(t, err)
		require.Equal(t, expected, count, name)
	}
}
