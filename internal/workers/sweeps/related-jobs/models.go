// internal/workers/sweeps/related-jobs/models.go
package relatedjobs

type Input struct{}

type Output struct {
	UsersConsidered int `json:"usersConsidered"`
	UsersNotified   int `json:"usersNotified"`
	UsersSkipped    int `json:"usersSkipped"`
	Failed          int `json:"failed"`
}
