package normalizer

import (
	"strings"
	"unicode"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// teamIndex maps every canonicalized alias to its canonical team name.
type teamIndex map[string]string

func newTeamIndex(aliases map[string][]string) teamIndex {
	idx := make(teamIndex, len(aliases)*3)
	for name, list := range aliases {
		c := canonicalize(name)
		idx[c] = c
		for _, a := range list {
			idx[canonicalize(a)] = c
		}
	}
	return idx
}

// canonical resolves a team name through the alias table. Unknown names map
// to their own canonical form.
func (t teamIndex) canonical(name string) string {
	c := canonicalize(name)
	if v, ok := t[c]; ok {
		return v
	}
	return c
}

// spellings lists every known way to write team, canonical form included.
func (t teamIndex) spellings(team string) []string {
	c := t.canonical(team)
	out := []string{c}
	for alias, canon := range t {
		if canon == c && alias != c {
			out = append(out, alias)
		}
	}
	return out
}

// indexIn returns the earliest word-aligned position of team in text, or -1.
func (t teamIndex) indexIn(text, team string) int {
	hay := " " + canonicalize(text) + " "
	best := -1
	for _, s := range t.spellings(team) {
		if s == "" {
			continue
		}
		if i := strings.Index(hay, " "+s+" "); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

// firstMentioned returns the canonical name of whichever of a and b appears
// first in text, or "" when neither does.
func (t teamIndex) firstMentioned(text, a, b string) string {
	ia, ib := t.indexIn(text, a), t.indexIn(text, b)
	switch {
	case ia < 0 && ib < 0:
		return ""
	case ib < 0 || (ia >= 0 && ia <= ib):
		return t.canonical(a)
	default:
		return t.canonical(b)
	}
}

// matchQuote finds the quote for the same game as m. When discovery parsed
// both teams they must match the quote's pair; otherwise both quote teams
// must appear in the question.
func matchQuote(m domain.Market, quotes []domain.ReferenceQuote, teams teamIndex) (domain.ReferenceQuote, bool) {
	for _, q := range quotes {
		qh, qa := teams.canonical(q.HomeTeam), teams.canonical(q.AwayTeam)
		if m.HomeTeam != "" && m.AwayTeam != "" {
			mh, ma := teams.canonical(m.HomeTeam), teams.canonical(m.AwayTeam)
			if (mh == qh && ma == qa) || (mh == qa && ma == qh) {
				return q, true
			}
			continue
		}
		if teams.indexIn(m.Question, q.HomeTeam) >= 0 && teams.indexIn(m.Question, q.AwayTeam) >= 0 {
			return q, true
		}
	}
	return domain.ReferenceQuote{}, false
}

// canonicalize lowercases s and collapses every run of non-alphanumerics into
// a single space.
func canonicalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}
