package captcha

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomediumitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
	"golang.org/x/image/font/opentype"
)

// FontAll selects every built-in font.
const FontAll = "all"

var builtinFonts = map[string][]byte{
	"goregular":      goregular.TTF,
	"gobold":         gobold.TTF,
	"goitalic":       goitalic.TTF,
	"gobolditalic":   gobolditalic.TTF,
	"gomedium":       gomedium.TTF,
	"gomediumitalic": gomediumitalic.TTF,
	"gomono":         gomono.TTF,
	"gomonobold":     gomonobold.TTF,
	"gosmallcaps":    gosmallcaps.TTF,
}

// BuiltinFonts returns the names of the embedded fonts, sorted.
func BuiltinFonts() []string {
	names := make([]string, 0, len(builtinFonts))
	for name := range builtinFonts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CaptchaFont is a parsed font ready for rendering. *opentype.Font is safe
// for concurrent use; faces are created per render.
type CaptchaFont struct {
	Name string
	Font *opentype.Font
}

// LoadFonts resolves a font selection. Each entry is a built-in name (with or
// without a .ttf suffix), FontAll, or a path to a .ttf/.otf file. An empty
// selection means goregular. Unknown entries fail with ErrUnknownFont.
func LoadFonts(selection []string) ([]CaptchaFont, error) {
	if len(selection) == 0 {
		selection = []string{"goregular"}
	}

	var names []string
	for _, entry := range selection {
		if strings.EqualFold(entry, FontAll) {
			names = append(names, BuiltinFonts()...)
			continue
		}
		names = append(names, entry)
	}

	fonts := make([]CaptchaFont, 0, len(names))
	loaded := map[string]bool{}
	for _, name := range names {
		key := strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
		if loaded[key] {
			continue
		}

		data, ok := builtinFonts[key]
		if !ok || strings.ContainsRune(name, os.PathSeparator) {
			b, err := os.ReadFile(name)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrUnknownFont, name)
			}
			data = b
		}

		f, err := opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnknownFont, name, err)
		}
		loaded[key] = true
		fonts = append(fonts, CaptchaFont{Name: key, Font: f})
	}
	return fonts, nil
}
