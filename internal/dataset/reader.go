package dataset

import (
	"archive/zip"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// shpFileCode is the magic number at the start of every .shp file.
const shpFileCode = 9994

// shapeReader is the method set shared by shp.Reader and shp.ZipReader.
type shapeReader interface {
	Next() bool
	Shape() (int, shp.Shape)
	Attribute(n int) string
	Fields() []shp.Field
	Err() error
	Close() error
}

// Load reads the file at path and drops records with missing values.
func Load(path string) (*RecordSet, error) {
	rs, err := Read(path)
	if err != nil {
		return nil, err
	}

	complete := DropMissing(rs)
	if dropped := rs.Len() - complete.Len(); dropped > 0 {
		zap.L().Info("dataset: dropped incomplete records",
			zap.String("path", path),
			zap.Int("dropped", dropped),
			zap.Int("kept", complete.Len()),
		)
	}
	return complete, nil
}

// Read parses a polygon shapefile (.shp with .dbf sidecar) or a .zip
// archive holding one. Every record is kept, including incomplete ones.
func Read(path string) (*RecordSet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return readZip(path)
	case ".shp":
		return readShapefile(path)
	default:
		return nil, eris.Wrapf(ErrParse, "unsupported file extension %q", filepath.Ext(path))
	}
}

func readShapefile(path string) (*RecordSet, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	if err := requireFile(path); err != nil {
		return nil, err
	}
	if err := requireFile(base + ".dbf"); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(ErrFileNotFound, "open %s: %v", path, err)
	}
	headerErr := checkHeader(f)
	_ = f.Close()
	if headerErr != nil {
		return nil, eris.Wrapf(headerErr, "read %s", path)
	}

	var cpg string
	if b, err := os.ReadFile(base + ".cpg"); err == nil {
		cpg = string(b)
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(ErrFileNotFound, "open %s: %v", path, err)
	}
	defer func() { _ = reader.Close() }()

	switch reader.GeometryType {
	case shp.NULL, shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
	default:
		return nil, eris.Wrapf(ErrParse, "%s: geometry type %d is not a polygon type", path, reader.GeometryType)
	}

	return collect(reader, textDecoder(cpg), path)
}

func readZip(path string) (*RecordSet, error) {
	if err := requireFile(path); err != nil {
		return nil, err
	}

	cpg, err := inspectZip(path)
	if err != nil {
		return nil, err
	}

	reader, err := shp.OpenZip(path)
	if err != nil {
		return nil, eris.Wrapf(ErrParse, "open %s: %v", path, err)
	}
	defer func() { _ = reader.Close() }()

	return collect(reader, textDecoder(cpg), path)
}

// inspectZip checks that the archive holds exactly one shapefile with its
// .dbf sidecar and returns the contents of the .cpg sidecar, if any.
func inspectZip(zipPath string) (string, error) {
	z, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrapf(ErrParse, "open archive %s: %v", zipPath, err)
	}
	defer z.Close() //nolint:errcheck

	entries := make(map[string]*zip.File, len(z.File))
	var shps []string
	for _, f := range z.File {
		entries[strings.ToLower(f.Name)] = f
		if strings.EqualFold(path.Ext(f.Name), ".shp") {
			shps = append(shps, f.Name)
		}
	}
	if len(shps) != 1 {
		return "", eris.Wrapf(ErrParse, "archive %s holds %d shapefiles, want 1", zipPath, len(shps))
	}

	base := strings.ToLower(strings.TrimSuffix(shps[0], path.Ext(shps[0])))
	if _, ok := entries[base+".dbf"]; !ok {
		return "", eris.Wrapf(ErrFileNotFound, "archive %s has no %s.dbf", zipPath, base)
	}

	rc, err := entries[strings.ToLower(shps[0])].Open()
	if err != nil {
		return "", eris.Wrapf(ErrParse, "open %s in archive: %v", shps[0], err)
	}
	headerErr := checkHeader(rc)
	_ = rc.Close()
	if headerErr != nil {
		return "", eris.Wrapf(headerErr, "read %s in archive %s", shps[0], zipPath)
	}

	cpgEntry, ok := entries[base+".cpg"]
	if !ok {
		return "", nil
	}
	rc, err = cpgEntry.Open()
	if err != nil {
		return "", nil
	}
	defer rc.Close() //nolint:errcheck
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", nil
	}
	return string(b), nil
}

// checkHeader validates the file code and version of a .shp header.
func checkHeader(r io.Reader) error {
	var hdr [100]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return eris.Wrapf(ErrParse, "short shapefile header: %v", err)
	}
	if code := int32(binary.BigEndian.Uint32(hdr[0:4])); code != shpFileCode {
		return eris.Wrapf(ErrParse, "bad shapefile file code %d", code)
	}
	if version := int32(binary.LittleEndian.Uint32(hdr[28:32])); version != 1000 {
		return eris.Wrapf(ErrParse, "bad shapefile version %d", version)
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(ErrFileNotFound, "%s", path)
	}
	if err != nil {
		return eris.Wrapf(ErrFileNotFound, "stat %s: %v", path, err)
	}
	if info.IsDir() {
		return eris.Wrapf(ErrFileNotFound, "%s is a directory", path)
	}
	return nil
}

// collect drains a shape reader into a record set.
func collect(reader shapeReader, decode func(string) string, path string) (*RecordSet, error) {
	shpFields := reader.Fields()
	fields := make([]Field, len(shpFields))
	for i, f := range shpFields {
		fields[i] = Field{
			Name:      strings.TrimSpace(strings.TrimRight(f.String(), "\x00")),
			Type:      f.Fieldtype,
			Size:      f.Size,
			Precision: f.Precision,
		}
	}
	rs := New(fields)

	var nullGeoms int
	for reader.Next() {
		idx, shape := reader.Shape()

		g, err := toMultiPolygon(shape)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: record %d", path, idx)
		}
		if g == nil {
			nullGeoms++
		}

		values := make([]Value, len(fields))
		for i, f := range fields {
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			v, err := parseValue(f, decode(raw))
			if err != nil {
				return nil, eris.Wrapf(err, "%s: record %d field %s", path, idx, f.Name)
			}
			values[i] = v
		}

		rs.Records = append(rs.Records, Record{Index: idx, Geometry: g, Values: values})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(ErrParse, "%s: %v", path, err)
	}

	zap.L().Debug("dataset: read shapefile",
		zap.String("path", path),
		zap.Int("records", rs.Len()),
		zap.Int("fields", len(fields)),
		zap.Int("null_geometries", nullGeoms),
	)
	return rs, nil
}

// parseValue converts a trimmed dBase cell. Blank cells are missing, as are
// numeric overflow markers ("***"), unknown logicals ("?") and zero dates.
func parseValue(f Field, raw string) (Value, error) {
	switch f.Type {
	case 'N', 'F':
		if raw == "" || strings.Trim(raw, "*") == "" {
			return Value{Number: math.NaN(), Null: true}, nil
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, eris.Wrapf(ErrParse, "invalid number %q", raw)
		}
		return Value{Number: n, Text: raw}, nil
	case 'L':
		switch strings.ToUpper(raw) {
		case "T", "Y":
			return Value{Text: "T"}, nil
		case "F", "N":
			return Value{Text: "F"}, nil
		default:
			return Value{Null: true}, nil
		}
	case 'D':
		if raw == "" || raw == "00000000" {
			return Value{Null: true}, nil
		}
		return Value{Text: raw}, nil
	default:
		if raw == "" {
			return Value{Null: true}, nil
		}
		return Value{Text: raw}, nil
	}
}
