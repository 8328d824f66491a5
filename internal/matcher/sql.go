// internal/matcher/sql.go
package matcher

import (
	"fmt"
	"strings"

	"jobboard-notifier/internal/models"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern builds a LIKE pattern matching s anywhere, with LIKE
// metacharacters in s escaped.
func ContainsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// SQLFilter renders the same predicate as Matches as SQL conditions over
// the jobs table. Placeholders are numbered from startIdx. The returned
// clause is empty when the alert has no criteria; callers decide what that
// means via MatchUnfiltered.
func (m *Matcher) SQLFilter(alert models.JobAlert, startIdx int) (string, []interface{}) {
	c := CriteriaOf(alert)
	var (
		conds []string
		args  []interface{}
		idx   = startIdx
	)

	next := func(v interface{}) string {
		args = append(args, v)
		p := fmt.Sprintf("$%d", idx)
		idx++
		return p
	}

	if len(c.Keywords) > 0 {
		ors := make([]string, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			ors = append(ors, "LOWER(title || ' ' || description) LIKE "+next(ContainsPattern(kw)))
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if c.City != "" {
		conds = append(conds, "LOWER(city) = LOWER("+next(c.City)+")")
	}
	if c.Country != "" {
		conds = append(conds, "country = "+next(c.Country))
	}
	if c.Preference != "" {
		conds = append(conds, "preference = "+next(c.Preference))
	}
	if c.Company != "" {
		conds = append(conds, "LOWER(company) LIKE "+next(ContainsPattern(c.Company)))
	}

	return strings.Join(conds, " AND "), args
}
