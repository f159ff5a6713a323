package dataset

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// codePages maps the numeric code pages ESRI writes into .cpg files to
// WHATWG encoding labels.
var codePages = map[int]string{
	437:   "ibm866",
	866:   "ibm866",
	874:   "windows-874",
	932:   "shift_jis",
	936:   "gbk",
	949:   "euc-kr",
	950:   "big5",
	65001: "utf-8",
	88591: "iso-8859-1",
	88592: "iso-8859-2",
	88595: "iso-8859-5",
	88597: "iso-8859-7",
	88599: "iso-8859-9",
}

// cpgLabel normalizes the contents of a .cpg sidecar to an encoding label.
func cpgLabel(raw string) string {
	label := strings.TrimSpace(raw)
	label = strings.TrimPrefix(strings.ToUpper(label), "ANSI ")
	label = strings.TrimSpace(label)
	if n, err := strconv.Atoi(label); err == nil {
		if n >= 1250 && n <= 1258 {
			return "windows-" + label
		}
		if l, ok := codePages[n]; ok {
			return l
		}
	}
	return strings.ToLower(label)
}

// textDecoder returns a function converting raw dBase bytes to UTF-8. An
// empty, UTF-8 or unknown label decodes as-is.
func textDecoder(cpg string) func(string) string {
	label := cpgLabel(cpg)
	if label == "" || label == "utf-8" || label == "utf8" {
		return identity
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		zap.L().Warn("dataset: unknown code page, reading attributes as-is",
			zap.String("cpg", cpg),
			zap.Error(err),
		)
		return identity
	}
	return decodeWith(enc)
}

func decodeWith(enc encoding.Encoding) func(string) string {
	return func(s string) string {
		out, err := enc.NewDecoder().String(s)
		if err != nil {
			return s
		}
		return out
	}
}

func identity(s string) string { return s }
