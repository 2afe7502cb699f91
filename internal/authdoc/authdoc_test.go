package authdoc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF assembles a one-page PDF whose content stream is content.
func buildPDF(content string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestContentText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"single show", "BT /F1 12 Tf 72 700 Td (AUTHORIZED TO PASS) Tj ET", "AUTHORIZED TO PASS"},
		{"kerned array", "BT [(AUTHORIZED) -300 (TO) -300 (PASS)] TJ ET", "AUTHORIZED TO PASS"},
		{"tight kerning joins", "BT [(AUTH) -20 (ORIZED)] TJ ET", "AUTHORIZED"},
		{"separate shows", "BT (AUTHORIZED) Tj 0 -14 Td (TO) Tj (PASS) ' ET", "AUTHORIZED TO PASS"},
		{"escapes", `BT (A\(B\)) Tj (\101\102) Tj ET`, "A(B) AB"},
		{"nested parens", "BT (a (b) c) Tj ET", "a (b) c"},
		{"hex string", "BT <415554 4F> Tj ET", "AUTO"},
		{"comments skipped", "% (HIDDEN) Tj\nBT (shown) Tj ET", "shown"},
		{"no text", "0 0 m 100 100 l S", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, contentText([]byte(tt.content)))
		})
	}
}

func TestContainsCollapsesWhitespace(t *testing.T) {
	assert.True(t, Contains("status:\nAUTHORIZED   TO\tPASS.", "AUTHORIZED TO PASS"))
	assert.False(t, Contains("authorized to pass", "AUTHORIZED TO PASS"))
	assert.False(t, Contains("NOT AUTHORIZED", "AUTHORIZED TO PASS"))
}

func TestInspectApprovedDocument(t *testing.T) {
	path := writeFile(t, "permit.pdf", buildPDF("BT /F1 12 Tf 72 700 Td (Vehicle RAB123C is AUTHORIZED TO PASS) Tj ET"))

	ok, err := Inspect(path, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInspectDocumentWithoutPhrase(t *testing.T) {
	path := writeFile(t, "permit.PDF", buildPDF("BT /F1 12 Tf 72 700 Td (Application pending) Tj ET"))

	ok, err := Inspect(path, DefaultPhrase)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInspectFailsClosed(t *testing.T) {
	t.Run("wrong extension", func(t *testing.T) {
		path := writeFile(t, "permit.txt", []byte("AUTHORIZED TO PASS"))
		ok, err := Inspect(path, DefaultPhrase)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrNotPDF)
	})
	t.Run("missing file", func(t *testing.T) {
		ok, err := Inspect(filepath.Join(t.TempDir(), "absent.pdf"), DefaultPhrase)
		assert.False(t, ok)
		assert.Error(t, err)
	})
	t.Run("corrupt pdf", func(t *testing.T) {
		path := writeFile(t, "broken.pdf", []byte("AUTHORIZED TO PASS but not a pdf"))
		ok, err := Inspect(path, DefaultPhrase)
		assert.False(t, ok)
		assert.Error(t, err)
	})
}
