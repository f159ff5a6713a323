package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		out = append(out, filepath.ToSlash(rel))
		return err
	}))
	return out
}

func TestExtractShapefile(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"chicago.shp": "shp",
		"chicago.dbf": "dbf",
		"chicago.shx": "shx",
		"chicago.prj": "prj",
	})

	destDir := t.TempDir()
	shp, err := ExtractShapefile(zipPath, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "chicago.shp"), shp)
	assert.ElementsMatch(t, []string{"chicago.shp", "chicago.dbf", "chicago.shx", "chicago.prj"}, listFiles(t, destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "chicago.dbf"))
	require.NoError(t, err)
	assert.Equal(t, "dbf", string(data))
}

func TestExtractShapefile_OnlyChosenShapefile(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"__MACOSX/data/._a.shp": "fork",
		"data/b.SHP":            "shp",
		"data/b.DBF":            "dbf",
		"data/c.shp":            "other",
		"data/c.dbf":            "other",
		"readme.txt":            "hi",
	})

	destDir := t.TempDir()
	shp, err := ExtractShapefile(zipPath, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "data", "b.SHP"), shp)
	assert.ElementsMatch(t, []string{"data/b.SHP", "data/b.DBF"}, listFiles(t, destDir))
}

func TestExtractShapefile_MissingAttributeTable(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"areas.shp": "shp", "areas.shx": "shx"})

	_, err := ExtractShapefile(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no .dbf file")
}

func TestExtractShapefile_EscapingMember(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"../../evil.shp": "bad",
		"../../evil.dbf": "bad",
	})

	destDir := t.TempDir()
	_, err := ExtractShapefile(zipPath, destDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes the extraction directory")
	assert.Empty(t, listFiles(t, destDir))
}

func TestExtractShapefile_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := ExtractShapefile(path, t.TempDir())
	assert.Error(t, err)
}

func TestExtractShapefile_None(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"readme.txt": "hi"})

	_, err := ExtractShapefile(zipPath, t.TempDir())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoShapefile))
}
