// internal/models/search_history.go
package models

import "time"

type SearchQuery struct {
	Term       string `json:"term,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	Preference string `json:"preference,omitempty"`
	Company    string `json:"company,omitempty"`
	MinSalary  *int   `json:"minSalary,omitempty"`
	MaxSalary  *int   `json:"maxSalary,omitempty"`
}

type SearchMetadata struct {
	UserAgent string `json:"userAgent,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Source    string `json:"source,omitempty"`
}

// SearchHistoryEntry is one document in the search history index. UserID
// is nil for anonymous searches.
type SearchHistoryEntry struct {
	UserID         *int64                   `json:"userId"`
	SearchQuery    SearchQuery              `json:"searchQuery"`
	ResultsCount   int                      `json:"resultsCount"`
	SearchResults  []map[string]interface{} `json:"searchResults,omitempty"`
	SearchMetadata SearchMetadata           `json:"searchMetadata"`
	SearchedAt     time.Time                `json:"searchedAt"`
}

// SearchProfile is the union of a user's recent search shapes.
type SearchProfile struct {
	UserID      int64    `json:"userId"`
	Terms       []string `json:"terms"`
	Cities      []string `json:"cities"`
	Countries   []string `json:"countries"`
	Preferences []string `json:"preferences"`
}

func (p SearchProfile) Empty() bool {
	return len(p.Terms) == 0 && len(p.Cities) == 0 && len(p.Countries) == 0 && len(p.Preferences) == 0
}
