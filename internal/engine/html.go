package engine

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// socialMediaDomains are excluded from link extraction when
// ExcludeSocialMediaLinks is set.
var socialMediaDomains = []string{
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"linkedin.com",
	"youtube.com",
	"tiktok.com",
	"pinterest.com",
	"reddit.com",
}

type pageOptions struct {
	BaseURL                 *url.URL
	WordCountThreshold      int
	ExcludedTags            []string
	ExcludeExternalLinks    bool
	ExcludeSocialMediaLinks bool
}

// skippedTags is the set of elements whose subtrees never contribute
// content, extended per crawl by ExcludedTags.
func (o pageOptions) skippedTags() map[string]bool {
	skip := map[string]bool{
		"script":   true,
		"style":    true,
		"noscript": true,
		"head":     true,
	}
	for _, tag := range o.ExcludedTags {
		skip[strings.ToLower(tag)] = true
	}
	return skip
}

// page is the processed form of a fetched document.
type page struct {
	Markdown    string
	Text        string
	CleanedHTML string
	Links       Links
	Media       Media
	Metadata    Metadata
}

// processHTML turns raw page HTML into markdown, text, links, media and
// metadata. The local engine runs it on browser output; the remote
// engine only uses it for fields the crawl service did not populate.
func processHTML(rawHTML string, opts pageOptions) (*page, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	skip := opts.skippedTags()
	p := &page{
		CleanedHTML: cleanHTML(rawHTML),
		Markdown:    renderMarkdown(root, opts.WordCountThreshold, skip),
		Text:        renderText(root, skip),
		Metadata:    extractMetadata(root),
		Media:       extractMedia(root),
	}
	p.Links = extractLinks(root, opts)
	return p, nil
}

// scopeHTML narrows a document to the elements matching selector,
// returning their concatenated outer HTML. An empty match set returns
// an empty string so callers can tell the selector found nothing.
func scopeHTML(rawHTML, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	var parts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			parts = append(parts, h)
		}
	})
	return strings.Join(parts, "\n"), nil
}

var (
	scriptRe  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	commentRe = regexp.MustCompile(`<!--[\s\S]*?-->`)
	spaceRe   = regexp.MustCompile(`\s+`)
	blankRe   = regexp.MustCompile(`\n{3,}`)
)

func cleanHTML(content string) string {
	content = scriptRe.ReplaceAllString(content, "")
	content = styleRe.ReplaceAllString(content, "")
	content = commentRe.ReplaceAllString(content, "")
	return content
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// renderMarkdown converts a parsed document to markdown. Paragraphs and
// list items with fewer than wordThreshold words are dropped; headings
// are always kept.
func renderMarkdown(root *html.Node, wordThreshold int, skip map[string]bool) string {
	var md strings.Builder

	var convert func(*html.Node)
	convert = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skip[n.Data] {
				return
			}
			switch n.Data {
			case "p", "li":
				if wordThreshold > 0 && countWords(nodeText(n)) < wordThreshold {
					return
				}
				if n.Data == "p" {
					md.WriteString("\n\n")
				} else {
					md.WriteString("\n- ")
				}
			case "h1":
				md.WriteString("\n# ")
			case "h2":
				md.WriteString("\n## ")
			case "h3":
				md.WriteString("\n### ")
			case "h4":
				md.WriteString("\n#### ")
			case "h5":
				md.WriteString("\n##### ")
			case "h6":
				md.WriteString("\n###### ")
			case "br":
				md.WriteString("\n")
			case "strong", "b":
				md.WriteString("**")
			case "em", "i":
				md.WriteString("*")
			case "code":
				md.WriteString("`")
			case "pre":
				md.WriteString("\n```\n")
			case "img":
				var src, alt string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "src":
						src = attr.Val
					case "alt":
						alt = attr.Val
					}
				}
				if src != "" {
					md.WriteString("![")
					md.WriteString(alt)
					md.WriteString("](")
					md.WriteString(src)
					md.WriteString(")")
				}
				return
			case "a":
				for _, attr := range n.Attr {
					if attr.Key == "href" {
						md.WriteString("[")
						for c := n.FirstChild; c != nil; c = c.NextSibling {
							convert(c)
						}
						md.WriteString("](")
						md.WriteString(attr.Val)
						md.WriteString(")")
						return
					}
				}
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				md.WriteString(text)
				md.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			convert(c)
		}

		if n.Type == html.ElementNode {
			switch n.Data {
			case "strong", "b":
				md.WriteString("**")
			case "em", "i":
				md.WriteString("*")
			case "code":
				md.WriteString("`")
			case "pre":
				md.WriteString("\n```\n")
			case "h1", "h2", "h3", "h4", "h5", "h6":
				md.WriteString("\n")
			}
		}
	}

	convert(root)

	out := blankRe.ReplaceAllString(md.String(), "\n\n")
	return strings.TrimSpace(out)
}

func renderText(root *html.Node, skip map[string]bool) string {
	var b strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skip[n.Data] {
				return
			}
			switch n.Data {
			case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6", "li", "tr":
				b.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	text := spaceRe.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(text)
}

func extractMetadata(root *html.Node) Metadata {
	var meta Metadata
	var ogTitle string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html":
				for _, attr := range n.Attr {
					if attr.Key == "lang" {
						meta.Language = attr.Val
					}
				}
			case "title":
				if n.FirstChild != nil && meta.Title == "" {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, property, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "name":
						name = strings.ToLower(attr.Val)
					case "property":
						property = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				switch name {
				case "description":
					meta.Description = content
				case "keywords":
					meta.Keywords = content
				case "author":
					meta.Author = content
				}
				if property == "og:title" {
					ogTitle = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if meta.Title == "" {
		meta.Title = ogTitle
	}
	return meta
}

func extractMedia(root *html.Node) Media {
	var media Media

	attrVal := func(n *html.Node, key string) string {
		for _, attr := range n.Attr {
			if attr.Key == key {
				return attr.Val
			}
		}
		return ""
	}
	// <video>/<audio> may carry src on a nested <source>.
	sourceSrc := func(n *html.Node) string {
		if src := attrVal(n, "src"); src != "" {
			return src
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "source" {
				if src := attrVal(c, "src"); src != "" {
					return src
				}
			}
		}
		return ""
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img":
				if src := attrVal(n, "src"); src != "" {
					w, _ := strconv.Atoi(attrVal(n, "width"))
					h, _ := strconv.Atoi(attrVal(n, "height"))
					media.Images = append(media.Images, Image{
						Src:    src,
						Alt:    attrVal(n, "alt"),
						Width:  w,
						Height: h,
					})
				}
			case "video":
				if src := sourceSrc(n); src != "" {
					media.Videos = append(media.Videos, Video{
						Src:    src,
						Poster: attrVal(n, "poster"),
					})
				}
			case "audio":
				if src := sourceSrc(n); src != "" {
					media.Audios = append(media.Audios, Audio{Src: src})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return media
}

func isSocialMediaHost(host string) bool {
	host = strings.ToLower(host)
	for _, domain := range socialMediaDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func sameSite(a, b string) bool {
	trim := func(h string) string {
		return strings.TrimPrefix(strings.ToLower(h), "www.")
	}
	return trim(a) == trim(b)
}

// extractLinks collects anchors, resolves them against the page URL and
// splits them into internal and external sets.
func extractLinks(root *html.Node, opts pageOptions) Links {
	var links Links
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href, title string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "href":
					href = attr.Val
				case "title":
					title = attr.Val
				}
			}

			if href != "" && !skipHref(href) {
				resolved := href
				if opts.BaseURL != nil {
					if ref, err := url.Parse(href); err == nil {
						resolved = opts.BaseURL.ResolveReference(ref).String()
					}
				}

				if !seen[resolved] {
					seen[resolved] = true
					link := Link{
						Href: resolved,
						Text: strings.TrimSpace(nodeText(n)),
					}
					if title != "" {
						link.Title = title
					}

					host := ""
					if u, err := url.Parse(resolved); err == nil {
						host = u.Hostname()
					}
					link.BaseDomain = host

					internal := opts.BaseURL != nil && sameSite(host, opts.BaseURL.Hostname())
					switch {
					case internal:
						links.Internal = append(links.Internal, link)
					case opts.ExcludeExternalLinks:
					case opts.ExcludeSocialMediaLinks && isSocialMediaHost(host):
					default:
						links.External = append(links.External, link)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return links
}

func skipHref(href string) bool {
	return strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:")
}
