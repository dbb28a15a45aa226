// Package extract pulls business records out of rendered search-result
// markup. Result layouts churn constantly, so every lookup goes through a
// list of candidate selectors tried in order.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/leadgrab/leadgrab/models"
	"golang.org/x/net/html"
)

// blockMatchers select candidate result blocks. Several layouts coexist on
// one page, so hits from all matchers are merged in document order.
var blockMatchers = compileAll(
	"div.g",
	"div[data-sokoban-container]",
	"div.w7Dbne",
	"div.VkpGBb",
	"div.MUxGbd",
	"div.tF2Cxc",
	"div.yuRUbf",
)

// nameMatchers select the display-name element inside a block.
var nameMatchers = compileAll(
	"span.OSrXXb",
	"h3.LC20lb",
	"h3",
	"h2",
	"div.vk_bk",
	"span[role='heading']",
	"div.dBln1c",
	"div.CNf3nf",
	"div.cXedhc",
)

// contactMatchers select detail sections scanned for a phone number when the
// block-level text yields none.
var contactMatchers = compileAll(
	"div.rllt__details",
	"div.s",
	"div.I6TXqe",
	"span.OSrXXb",
)

// imageMatchers select the thumbnail inside a block.
var imageMatchers = compileAll(
	"img.YQ4gaf",
	"img.XNo5Ab",
	"img",
	"img.rISBZc",
)

var (
	ratingMatcher   = cascadia.MustCompile("span.rtng")
	reviewsMatcher  = cascadia.MustCompile("span[aria-label*='review']")
	categoryMatcher = cascadia.MustCompile("div.YhemCb, div.CCgQ5")
)

func compileAll(selectors ...string) []cascadia.Selector {
	out := make([]cascadia.Selector, 0, len(selectors))
	for _, s := range selectors {
		out = append(out, cascadia.MustCompile(s))
	}
	return out
}

// Parse builds a queryable document tree from rendered markup.
func Parse(rawHTML string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
}

// Blocks returns the candidate result blocks, grouped by matcher in the
// order the matchers are declared. Blocks matched by more than one selector
// appear once.
func Blocks(doc *goquery.Document) []*goquery.Selection {
	seen := make(map[*html.Node]struct{})
	var blocks []*goquery.Selection

	for _, m := range blockMatchers {
		doc.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
			node := s.Get(0)
			if _, dup := seen[node]; dup {
				return
			}
			seen[node] = struct{}{}
			blocks = append(blocks, s)
		})
	}
	return blocks
}

// Business extracts one record from a result block. The second return value
// is false when the block has no usable name or no phone number; such blocks
// are skipped, never stored with empty fields.
func Business(sel *goquery.Selection) (models.Record, bool) {
	name := extractName(sel)
	if name == "" {
		return models.Record{}, false
	}

	phone := FindPhone(blockText(sel))
	if phone == "" {
		for _, m := range contactMatchers {
			sel.FindMatcher(m).EachWithBreak(func(_ int, section *goquery.Selection) bool {
				phone = FindPhone(blockText(section))
				return phone == ""
			})
			if phone != "" {
				break
			}
		}
	}
	if phone == "" {
		return models.Record{}, false
	}

	rec := models.Record{
		Name:  name,
		Phone: phone,
		Image: extractImage(sel),
	}
	fillExtras(sel, &rec)
	return rec, true
}

func extractName(sel *goquery.Selection) string {
	for _, m := range nameMatchers {
		name := strings.TrimSpace(sel.FindMatcher(m).First().Text())
		if utf8.RuneCountInString(name) >= 2 {
			return name
		}
	}
	return ""
}

func extractImage(sel *goquery.Selection) *string {
	for _, m := range imageMatchers {
		img := sel.FindMatcher(m).First()
		if img.Length() == 0 {
			continue
		}
		src, ok := img.Attr("src")
		if !ok || src == "" {
			src, _ = img.Attr("data-src")
		}
		if strings.HasPrefix(src, "http") {
			return &src
		}
	}
	return nil
}

var (
	floatRe  = regexp.MustCompile(`[\d.]+`)
	digitsRe = regexp.MustCompile(`\d+`)
)

// fillExtras populates rating, review count and category when present.
// All three are optional decoration; failures are ignored.
func fillExtras(sel *goquery.Selection, rec *models.Record) {
	if txt := sel.FindMatcher(ratingMatcher).First().Text(); txt != "" {
		if m := floatRe.FindString(txt); m != "" {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				rec.Rating = &f
			}
		}
	}
	if txt := sel.FindMatcher(reviewsMatcher).First().Text(); txt != "" {
		if m := digitsRe.FindString(strings.ReplaceAll(txt, ",", "")); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				rec.Reviews = &n
			}
		}
	}
	rec.Category = strings.TrimSpace(sel.FindMatcher(categoryMatcher).First().Text())
}

// blockText flattens a selection into the text of its descendant text nodes,
// space-joined. goquery's Text() concatenates without separators, which can
// fuse digits across sibling elements and corrupt phone matching.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		appendText(&b, node)
	}
	return b.String()
}

func appendText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
		return
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendText(b, c)
	}
}
