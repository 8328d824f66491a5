// internal/matcher/matcher.go
package matcher

import (
	"strings"

	"jobboard-notifier/internal/models"
)

// Matcher decides whether a job satisfies an alert. Every filter set on the
// alert must hold; unset (nil or blank) filters are ignored.
type Matcher struct {
	matchUnfiltered bool
}

// New returns a Matcher. matchUnfiltered controls whether an alert with no
// criteria at all matches every job.
func New(matchUnfiltered bool) *Matcher {
	return &Matcher{matchUnfiltered: matchUnfiltered}
}

// MatchUnfiltered reports the no-criteria policy this matcher applies.
func (m *Matcher) MatchUnfiltered() bool {
	return m.matchUnfiltered
}

func (m *Matcher) Matches(job models.Job, alert models.JobAlert) bool {
	c := CriteriaOf(alert)
	if c.Empty() {
		return m.matchUnfiltered
	}

	if len(c.Keywords) > 0 {
		text := strings.ToLower(job.Title + " " + job.Description)
		found := false
		for _, kw := range c.Keywords {
			if strings.Contains(text, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if c.City != "" && !strings.EqualFold(job.City, c.City) {
		return false
	}

	// countries come from a fixed vocabulary, compared as-is
	if c.Country != "" && job.Country != c.Country {
		return false
	}

	if c.Preference != "" && string(job.Preference) != c.Preference {
		return false
	}

	if c.Company != "" && !strings.Contains(strings.ToLower(job.Company), strings.ToLower(c.Company)) {
		return false
	}

	return true
}

// Filter returns the jobs that match alert, preserving order.
func (m *Matcher) Filter(jobs []models.Job, alert models.JobAlert) []models.Job {
	var out []models.Job
	for _, job := range jobs {
		if m.Matches(job, alert) {
			out = append(out, job)
		}
	}
	return out
}

// Criteria is the normalized form of an alert's filters.
type Criteria struct {
	Keywords   []string
	City       string
	Country    string
	Preference string
	Company    string
}

func (c Criteria) Empty() bool {
	return len(c.Keywords) == 0 && c.City == "" && c.Country == "" && c.Preference == "" && c.Company == ""
}

func CriteriaOf(alert models.JobAlert) Criteria {
	return Criteria{
		Keywords:   ParseKeywords(deref(alert.Keywords)),
		City:       strings.TrimSpace(deref(alert.City)),
		Country:    strings.TrimSpace(deref(alert.Country)),
		Preference: strings.TrimSpace(deref(alert.Preference)),
		Company:    strings.TrimSpace(deref(alert.Company)),
	}
}

// ParseKeywords splits a comma separated list into trimmed, lower-cased
// terms. Blank terms are dropped.
func ParseKeywords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		kw := strings.ToLower(strings.TrimSpace(p))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
