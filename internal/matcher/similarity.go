package matcher

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// bracketed remix/edit tags: "(Radio Edit)", "[Extended Mix]"
	bracketed = regexp.MustCompile(`[\(\[\{][^\)\]\}]*[\)\]\}]`)
	// trailing featuring credits: "feat. X", "ft X", "featuring X"
	featuring = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|featuring)\s+.*$`)
	// trailing dash tags: "- Radio Edit", "- Remastered 2011", "- Live at Wembley"
	dashTag = regexp.MustCompile(`(?i)\s+[-\x{2013}\x{2014}]\s+[^-\x{2013}\x{2014}]*\b(remaster\w*|edit|remix\w*|version|mix|live|mono|stereo|(19|20)\d{2})\b[^-\x{2013}\x{2014}]*$`)
)

// Normalize lowercases s, folds accents, and replaces punctuation with single spaces.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// StripDecorations removes bracketed tags, featuring credits and trailing dash tags from a title.
func StripDecorations(title string) string {
	title = bracketed.ReplaceAllString(title, " ")
	title = featuring.ReplaceAllString(title, "")
	title = dashTag.ReplaceAllString(strings.TrimSpace(title), "")
	return strings.TrimSpace(title)
}

// tokenSort normalizes s and sorts its words so word order does not matter.
func tokenSort(s string) string {
	words := strings.Fields(Normalize(s))
	sort.Strings(words)
	return strings.Join(words, " ")
}

// TokenSimilarity is the Sorensen-Dice bigram similarity of the token-sorted forms of a and b, in [0, 1].
func TokenSimilarity(a, b string) float64 {
	ta, tb := tokenSort(a), tokenSort(b)
	if ta == "" || tb == "" {
		return 0
	}
	if ta == tb {
		return 1
	}
	return strutil.Similarity(ta, tb, metrics.NewSorensenDice())
}

// PartialRatio scores how well the shorter of a and b appears inside the longer, in [0, 1].
//
// The shorter string is slid across the longer one and the best window by Levenshtein distance wins.
func PartialRatio(a, b string) float64 {
	ra, rb := []rune(Normalize(a)), []rune(Normalize(b))
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return 0
	}

	short := string(ra)
	best := 0.0
	for i := 0; i+len(ra) <= len(rb); i++ {
		d := levenshtein.ComputeDistance(short, string(rb[i:i+len(ra)]))
		if r := 1 - float64(d)/float64(len(ra)); r > best {
			best = r
			if best == 1 {
				break
			}
		}
	}
	return best
}
