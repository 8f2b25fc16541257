package reconstruct

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testRebuilder(t *testing.T) *Rebuilder {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	rb, err := NewRebuilder(filepath.Join(t.TempDir(), "recon"), log)
	require.NoError(t, err)
	return rb
}

func TestRebuildTextPrependsBanner(t *testing.T) {
	rb := testRebuilder(t)

	src := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o640))

	dest, err := rb.Rebuild(src, "note.txt")
	require.NoError(t, err)
	require.Equal(t, "safe_note.txt", filepath.Base(dest))

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, safeBanner+"hello world", string(content))
}

func TestRebuildDocxKeepsTextDropsMacros(t *testing.T) {
	rb := testRebuilder(t)

	src := filepath.Join(t.TempDir(), "report.docx")
	writeTestDocx(t, src, map[string]string{
		"word/document.xml": `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>first paragraph</w:t></w:r></w:p>
<w:p><w:r><w:t>second </w:t></w:r><w:r><w:t>&amp; third run</w:t></w:r></w:p>
</w:body></w:document>`,
		"word/vbaProject.bin":     "MACRO PAYLOAD",
		"word/embeddings/ole.bin": "OLE PAYLOAD",
	})

	dest, err := rb.Rebuild(src, "report.docx")
	require.NoError(t, err)

	zr, err := zip.OpenReader(dest)
	require.NoError(t, err)
	defer zr.Close()

	names := map[string]string{}
	for _, f := range zr.File {
		r, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(r)
		require.NoError(t, err)
		r.Close()
		names[f.Name] = string(body)
	}

	require.NotContains(t, names, "word/vbaProject.bin")
	require.NotContains(t, names, "word/embeddings/ole.bin")
	require.Contains(t, names, "word/document.xml")
	require.Contains(t, names["word/document.xml"], "first paragraph")
	require.Contains(t, names["word/document.xml"], "second &amp; third run")
	require.Contains(t, names, "[Content_Types].xml")
	require.Contains(t, names, "_rels/.rels")
}

func TestRebuildDocxWithoutDocumentPartFails(t *testing.T) {
	rb := testRebuilder(t)

	src := filepath.Join(t.TempDir(), "hollow.docx")
	writeTestDocx(t, src, map[string]string{"word/vbaProject.bin": "MACRO"})

	_, err := rb.Rebuild(src, "hollow.docx")
	require.Error(t, err)
}

func TestRebuildUnsupportedType(t *testing.T) {
	rb := testRebuilder(t)

	src := filepath.Join(t.TempDir(), "tool.exe")
	require.NoError(t, os.WriteFile(src, []byte{0x4d, 0x5a}, 0o640))

	_, err := rb.Rebuild(src, "tool.exe")
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func writeTestDocx(t *testing.T, path string, parts map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}
