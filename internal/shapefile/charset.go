package shapefile

import (
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// readCPG returns the trimmed contents of a .cpg code page file, or "" when
// the path is empty or unreadable.
func readCPG(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		zap.L().Debug("shapefile: unreadable .cpg", zap.String("path", path), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(string(data))
}

// cpgAliases maps the numeric code page names ArcGIS writes to WHATWG labels.
var cpgAliases = map[string]string{
	"65001":      "utf-8",
	"88591":      "iso-8859-1",
	"8859_1":     "iso-8859-1",
	"88592":      "iso-8859-2",
	"8859_2":     "iso-8859-2",
	"88595":      "iso-8859-5",
	"8859_5":     "iso-8859-5",
	"88597":      "iso-8859-7",
	"8859_7":     "iso-8859-7",
	"88599":      "iso-8859-9",
	"8859_9":     "iso-8859-9",
	"885915":     "iso-8859-15",
	"8859_15":    "iso-8859-15",
	"ansi 1252":  "windows-1252",
	"ansi 1251":  "windows-1251",
	"ansi 1250":  "windows-1250",
	"system":     "",
	"oem":        "",
	"cp1252":     "windows-1252",
	"cp1251":     "windows-1251",
	"latin1":     "iso-8859-1",
	"iso88591":   "iso-8859-1",
	"iso-8859-1": "iso-8859-1",
}

// attrDecoder turns raw DBF bytes into UTF-8 text.
type attrDecoder struct {
	name string
	enc  encoding.Encoding // nil means "keep valid UTF-8, else Windows-1252"
}

func newAttrDecoder(charset string) attrDecoder {
	label := strings.ToLower(strings.TrimSpace(charset))
	if alias, ok := cpgAliases[label]; ok {
		label = alias
	} else if len(label) == 4 && strings.HasPrefix(label, "125") {
		label = "windows-" + label
	}
	if label == "" {
		return attrDecoder{name: "auto"}
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		zap.L().Warn("shapefile: unsupported code page, guessing encoding",
			zap.String("charset", charset),
			zap.Error(err),
		)
		return attrDecoder{name: "auto"}
	}
	name, _ := htmlindex.Name(enc)
	return attrDecoder{name: name, enc: enc}
}

func (d attrDecoder) decode(raw string) string {
	if raw == "" {
		return raw
	}
	if d.enc == nil {
		if utf8.ValidString(raw) {
			return raw
		}
		return decodeWith(charmap.Windows1252, raw)
	}
	return decodeWith(d.enc, raw)
}

func decodeWith(enc encoding.Encoding, raw string) string {
	out, err := enc.NewDecoder().String(raw)
	if err != nil {
		return raw
	}
	return out
}
