// Package extractor locates the article title and candidate images in page markup.
package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/article-binder/internal/binder"
	"github.com/JakeFAU/article-binder/internal/pathname"
)

// Config controls which markup is treated as the title and the image attributes.
type Config struct {
	TitleSelector string
	URLAttr       string
	SizeAttr      string
	FormatParam   string
}

// DefaultConfig matches the markup of rich-media article pages.
func DefaultConfig() Config {
	return Config{
		TitleSelector: "h1.rich_media_title",
		URLAttr:       "data-src",
		SizeAttr:      "data-w",
		FormatParam:   "wx_fmt",
	}
}

// Extractor implements binder.PageExtractor with goquery.
type Extractor struct {
	cfg Config
}

// New builds an Extractor, filling empty fields from DefaultConfig.
func New(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.TitleSelector == "" {
		cfg.TitleSelector = def.TitleSelector
	}
	if cfg.URLAttr == "" {
		cfg.URLAttr = def.URLAttr
	}
	if cfg.SizeAttr == "" {
		cfg.SizeAttr = def.SizeAttr
	}
	if cfg.FormatParam == "" {
		cfg.FormatParam = def.FormatParam
	}
	return &Extractor{cfg: cfg}
}

// Extract returns the sanitized container name and every element matching
// selector, numbered from 1 in document order.
func (e *Extractor) Extract(markup []byte, selector string) (string, []binder.ResourceDescriptor, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return "", nil, fmt.Errorf("parse markup: %w", err)
	}

	title := strings.TrimSpace(doc.Find(e.cfg.TitleSelector).First().Text())
	title = strings.TrimSpace(strings.ReplaceAll(title, `\n`, ""))
	if title == "" {
		return "", nil, binder.ErrNoContainerName
	}
	name, err := pathname.Sanitize(title, "_")
	if err != nil {
		return "", nil, err
	}

	var descriptors []binder.ResourceDescriptor
	doc.Find(CSSSelector(selector)).Each(func(i int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr(e.cfg.URLAttr, ""))
		descriptors = append(descriptors, binder.ResourceDescriptor{
			URL:     src,
			Ordinal: i + 1,
			Format:  FormatHint(src, e.cfg.FormatParam),
			Size:    parseSize(s.AttrOr(e.cfg.SizeAttr, "")),
		})
	})
	return name, descriptors, nil
}

// CSSSelector turns a job's selector into CSS. A bare list of class names
// selects img elements carrying all of them; anything else is used as is.
func CSSSelector(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "img"
	}
	if strings.ContainsAny(raw, ".#[]:>+~*,=()") {
		return raw
	}
	return "img." + strings.Join(strings.Fields(raw), ".")
}

// FormatHint reads the image format encoded in a resource URL's query.
func FormatHint(rawURL, param string) string {
	if rawURL == "" || param == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get(param))
}

func parseSize(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return 0
		}
		return int(f)
	}
	return n
}

// Resolve makes descriptor URLs absolute against the page they were found on.
// Descriptors that cannot be resolved keep an empty URL.
func Resolve(base string, descriptors []binder.ResourceDescriptor) []binder.ResourceDescriptor {
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = nil
	}
	out := make([]binder.ResourceDescriptor, len(descriptors))
	for i, d := range descriptors {
		out[i] = d
		if d.URL == "" {
			continue
		}
		ref, err := url.Parse(d.URL)
		switch {
		case err != nil:
			out[i].URL = ""
		case ref.IsAbs():
		case baseURL != nil && baseURL.IsAbs():
			out[i].URL = baseURL.ResolveReference(ref).String()
		default:
			out[i].URL = ""
		}
	}
	return out
}
