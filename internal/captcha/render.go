package captcha

import (
	"encoding/base64"
	"fmt"
	"html"
	"math/rand/v2"
	"strings"
)

// Renderer turns one challenge word into an image the client can display, as a data URI.
type Renderer interface {
	Render(word string) (string, error)
}

// SVGRenderer draws each letter at a jittered offset and rotation over a few noise strokes.
type SVGRenderer struct{}

const (
	glyphWidth  = 22
	imageHeight = 48
	margin      = 12
)

func (SVGRenderer) Render(word string) (string, error) {
	if word == "" {
		return "", fmt.Errorf("empty word")
	}
	letters := []rune(word)
	width := len(letters)*glyphWidth + 2*margin

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, width, imageHeight, width, imageHeight)
	b.WriteString(`<rect width="100%" height="100%" fill="#f4f4f4"/>`)
	for range 3 {
		fmt.Fprintf(&b, `<line x1="0" y1="%d" x2="%d" y2="%d" stroke="#999" stroke-width="1.5"/>`,
			rand.IntN(imageHeight), width, rand.IntN(imageHeight))
	}
	for i, r := range letters {
		x := margin + i*glyphWidth + rand.IntN(5) - 2
		y := imageHeight*2/3 + rand.IntN(7) - 3
		fmt.Fprintf(&b, `<text x="%d" y="%d" transform="rotate(%d %d %d)" font-family="monospace" font-size="28" fill="#222">%s</text>`,
			x, y, rand.IntN(31)-15, x, y, html.EscapeString(string(r)))
	}
	b.WriteString(`</svg>`)

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(b.String())), nil
}
