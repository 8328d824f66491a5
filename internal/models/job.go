// internal/models/job.go
package models

import "time"

type Preference string

const (
	PreferenceRemote   Preference = "Uzaktan"
	PreferenceOffice   Preference = "Ofis"
	PreferenceHybrid   Preference = "Hibrit"
	PreferencePartTime Preference = "Yarı Zamanlı"
	PreferenceFullTime Preference = "Tam Zamanlı"
)

// Preferences lists the accepted work-mode values.
var Preferences = []Preference{
	PreferenceRemote,
	PreferenceOffice,
	PreferenceHybrid,
	PreferencePartTime,
	PreferenceFullTime,
}

func (p Preference) Valid() bool {
	for _, v := range Preferences {
		if p == v {
			return true
		}
	}
	return false
}

type Job struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Company      string     `json:"company"`
	City         string     `json:"city"`
	Country      string     `json:"country"`
	Preference   Preference `json:"preference"`
	Description  string     `json:"description"`
	Applications int        `json:"applications"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
