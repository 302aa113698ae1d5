package notify

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
)

// SortMode orders digest events.
type SortMode string

const (
	SortVolume      SortMode = "volume"
	SortPriceChange SortMode = "price_change"
)

// DigestSection is one category block of a digest.
type DigestSection struct {
	Category domain.Category
	Events   []domain.EventSummary
}

// markdownV2Specials must be backslash-escaped anywhere in Telegram
// MarkdownV2 text outside of entities.
const markdownV2Specials = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdown escapes s for Telegram MarkdownV2.
func EscapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SortEvents orders events in place: by total 24h volume, or by the largest
// absolute option move for SortPriceChange. Ties keep their input order.
func SortEvents(events []domain.EventSummary, mode SortMode) {
	if mode != SortPriceChange {
		slices.SortStableFunc(events, func(a, b domain.EventSummary) int {
			return cmp.Compare(b.TotalVolume, a.TotalVolume)
		})
		return
	}
	slices.SortStableFunc(events, func(a, b domain.EventSummary) int {
		return cmp.Compare(abs(b.MaxPriceChangePoints), abs(a.MaxPriceChangePoints))
	})
}

// FormatDigest renders sections as one MarkdownV2 message. now is shown in
// its own location. At most maxOptions options are listed per event.
func FormatDigest(sections []DigestSection, mode SortMode, now time.Time, maxOptions int) string {
	sortLabel := "24h Volume"
	if mode == SortPriceChange {
		sortLabel = "Biggest Movers"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Kalshi Markets Update*\n_%s_ \\| Sorted by %s\n\n",
		EscapeMarkdown(now.Format("2006-01-02 15:04 MST")), sortLabel)

	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		writeSection(&b, s, mode, maxOptions)
	}
	return b.String()
}

func writeSection(b *strings.Builder, s DigestSection, mode SortMode, maxOptions int) {
	label := s.Category.Label
	if label == "" {
		label = s.Category.Name
	}
	sortLabel := "24h Volume"
	if mode == SortPriceChange {
		sortLabel = "24h Movers"
	}

	icon := s.Category.Icon
	if icon != "" {
		icon += " "
	}
	fmt.Fprintf(b, "%s*Top %d %s* \\(by %s\\)\n\n", icon, len(s.Events), EscapeMarkdown(label), sortLabel)

	if len(s.Events) == 0 {
		b.WriteString("_No events found\\._\n")
		return
	}

	for i, ev := range s.Events {
		fmt.Fprintf(b, "*%d\\. %s*\n", i+1, EscapeMarkdown(ev.Title))

		shown := ev.Options
		if len(shown) > maxOptions {
			shown = shown[:maxOptions]
		}
		for _, opt := range shown {
			b.WriteString("  • ")
			b.WriteString(EscapeMarkdown(optionName(opt)))
			b.WriteString(": ")
			if p, ok := opt.Probability(); ok {
				fmt.Fprintf(b, "%d%%", p)
			} else {
				b.WriteString("n/a")
			}
			if mode == SortPriceChange {
				if pts, ok := opt.PriceChangePoints(); ok && pts != 0 {
					sign := "\\+"
					if pts < 0 {
						sign = "\\-"
					}
					fmt.Fprintf(b, " \\(%s%d%%\\)", sign, abs(pts))
				}
			}
			b.WriteString("\n")
		}
		if remaining := len(ev.Options) - len(shown); remaining > 0 {
			fmt.Fprintf(b, "  _\\.\\.\\.and %d more options_\n", remaining)
		}
		fmt.Fprintf(b, "  📊 Vol: %s\n\n", formatThousands(ev.TotalVolume))
	}
}

func optionName(m domain.MarketRecord) string {
	switch {
	case m.Subtitle != "":
		return m.Subtitle
	case m.Title != "":
		return m.Title
	default:
		return m.Ticker
	}
}

// formatThousands renders n with comma group separators, e.g. 1,234,567.
func formatThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// SplitMessage breaks text into chunks of at most limit characters, cutting
// on line boundaries. A single line longer than limit is cut on a rune
// boundary, never between a MarkdownV2 backslash and the character it escapes.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curLen = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		for n > limit {
			flush()
			head := cutLine(line, limit)
			chunks = append(chunks, head)
			line = line[len(head):]
			n = utf8.RuneCountInString(line)
		}
		if curLen+n > limit {
			flush()
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}

// cutLine returns the prefix of s holding at most n runes, shortened by one
// when it would end on an unpaired escape backslash.
func cutLine(s string, n int) string {
	end, count := len(s), 0
	for i := range s {
		if count == n {
			end = i
			break
		}
		count++
	}
	head := s[:end]
	trailing := len(head) - len(strings.TrimRight(head, `\`))
	if trailing%2 == 1 && len(head) > 1 {
		head = head[:len(head)-1]
	}
	return head
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
