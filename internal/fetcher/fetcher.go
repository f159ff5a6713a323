// Package fetcher downloads remote datasets over HTTP(S) or FTP and
// unpacks them into a local shapefile.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when the server has no such file.
	ErrNotFound = eris.New("fetcher: not found")
	// ErrNoShapefile is returned when an archive holds no .shp file.
	ErrNoShapefile = eris.New("fetcher: no shapefile in archive")
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

var (
	_ Fetcher = (*HTTPFetcher)(nil)
	_ Fetcher = (*FTPFetcher)(nil)
)

// sidecar is a file that accompanies a .shp on the server.
type sidecar struct {
	ext      string
	required bool
}

var sidecars = []sidecar{
	{ext: ".dbf", required: true},
	{ext: ".shx"},
	{ext: ".cpg"},
	{ext: ".prj"},
}

// Options configures a Client.
type Options struct {
	HTTP HTTPOptions
	FTP  FTPOptions
}

// Client fetches datasets, choosing a transport by URL scheme.
type Client struct {
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// New creates a Client.
func New(opts Options) *Client {
	return &Client{
		http: NewHTTPFetcher(opts.HTTP),
		ftp:  NewFTPFetcher(opts.FTP),
	}
}

// Fetch downloads rawURL into destDir and returns the path of the
// shapefile it provides. A .zip is extracted into destDir; a bare .shp is
// fetched together with its sidecar files. HTTP downloads are skipped when
// the server reports that the stored ETag is still current.
func (c *Client) Fetch(ctx context.Context, rawURL, destDir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: parse url")
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", eris.Errorf("fetcher: url %q names no file", rawURL)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create data directory")
	}

	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", rawURL))
	target := filepath.Join(destDir, name)
	if _, err := c.download(ctx, u.Scheme, rawURL, target); err != nil {
		return "", err
	}

	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".zip":
		shp, err := ExtractShapefile(target, destDir)
		if err != nil {
			return "", err
		}
		log.Info("fetcher: extracted shapefile", zap.String("path", shp))
		return shp, nil
	case ".shp":
		base := strings.TrimSuffix(u.Path, path.Ext(u.Path))
		for _, sc := range sidecars {
			su := *u
			su.Path, su.RawPath = base+sc.ext, ""
			dst := strings.TrimSuffix(target, filepath.Ext(target)) + sc.ext
			if _, err := c.download(ctx, u.Scheme, su.String(), dst); err != nil {
				if sc.required {
					return "", err
				}
				log.Debug("fetcher: optional sidecar unavailable", zap.String("ext", sc.ext), zap.Error(err))
			}
		}
		return target, nil
	default:
		return "", eris.Errorf("fetcher: unsupported file type %q", ext)
	}
}

// download stores rawURL at target and reports whether a new copy was
// written.
func (c *Client) download(ctx context.Context, scheme, rawURL, target string) (bool, error) {
	switch scheme {
	case "http", "https":
		return c.downloadHTTP(ctx, rawURL, target)
	case "ftp":
		if _, err := c.ftp.DownloadToFile(ctx, rawURL, target); err != nil {
			return false, eris.Wrapf(err, "fetcher: ftp %s", rawURL)
		}
		return true, nil
	default:
		return false, eris.Errorf("fetcher: unsupported scheme %q", scheme)
	}
}

func (c *Client) downloadHTTP(ctx context.Context, rawURL, target string) (bool, error) {
	etagPath := target + ".etag"
	var etag string
	if _, err := os.Stat(target); err == nil {
		if b, err := os.ReadFile(etagPath); err == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	body, newETag, changed, err := c.http.DownloadIfChanged(ctx, rawURL, etag)
	if err != nil {
		return false, err
	}
	if !changed {
		zap.L().Info("fetcher: remote file unchanged", zap.String("url", rawURL), zap.String("etag", etag))
		return false, nil
	}
	defer body.Close() //nolint:errcheck

	n, err := writeFile(target, body)
	if err != nil {
		return false, eris.Wrapf(err, "fetcher: save %s", filepath.Base(target))
	}
	if newETag != "" {
		if err := os.WriteFile(etagPath, []byte(newETag), 0o644); err != nil {
			return true, eris.Wrap(err, "fetcher: save etag")
		}
	} else {
		_ = os.Remove(etagPath)
	}
	zap.L().Info("fetcher: downloaded",
		zap.String("url", rawURL),
		zap.String("path", target),
		zap.Int64("bytes", n),
	)
	return true, nil
}
