package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractShapefile unpacks one shapefile from a ZIP archive into destDir and
// returns the path of its .shp. The first .shp member in lexical order is
// chosen; only it and its sidecar files are written, keeping their folder
// inside the archive. macOS resource forks are ignored.
func ExtractShapefile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	members := make(map[string]*zip.File, len(r.File))
	var shps []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || strings.Contains(f.Name, "/__MACOSX/") {
			continue
		}
		members[f.Name] = f
		if strings.EqualFold(path.Ext(f.Name), ".shp") {
			shps = append(shps, f.Name)
		}
	}
	if len(shps) == 0 {
		return "", eris.Wrapf(ErrNoShapefile, "zip: %s", filepath.Base(zipPath))
	}
	slices.Sort(shps)
	shp := shps[0]

	if err := extractMember(members[shp], destDir); err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(shp, path.Ext(shp))
	for _, sc := range sidecars {
		f := findMember(members, stem, sc.ext)
		if f == nil {
			if sc.required {
				return "", eris.Errorf("zip: %s has no %s file", shp, sc.ext)
			}
			continue
		}
		if err := extractMember(f, destDir); err != nil {
			return "", err
		}
	}
	return filepath.Join(destDir, filepath.FromSlash(shp)), nil
}

// findMember returns the member named stem+ext, matching ext in any case.
func findMember(members map[string]*zip.File, stem, ext string) *zip.File {
	for _, e := range []string{ext, strings.ToUpper(ext)} {
		if f, ok := members[stem+e]; ok {
			return f
		}
	}
	return nil
}

// extractMember writes f below destDir. Names that would escape destDir are
// rejected.
func extractMember(f *zip.File, destDir string) error {
	if !filepath.IsLocal(filepath.FromSlash(f.Name)) {
		return eris.Errorf("zip: member %q escapes the extraction directory", f.Name)
	}
	dst := filepath.Join(destDir, filepath.FromSlash(f.Name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrapf(err, "zip: create directory for %s", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", dst)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close() //nolint:errcheck,gosec
		return eris.Wrapf(err, "zip: write %s", dst)
	}
	return eris.Wrapf(out.Close(), "zip: close %s", dst)
}
