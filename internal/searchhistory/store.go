// internal/searchhistory/store.go
package searchhistory

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	DefaultIndex    = "job_searches"
	defaultMaxUsers = 10000
)

// Store reads and writes the search history index.
type Store struct {
	client   *elasticsearch.Client
	index    string
	maxUsers int
	logger   logger.Logger
	now      func() time.Time
}

func NewStore(client *elasticsearch.Client, index string, log logger.Logger) *Store {
	if index == "" {
		index = DefaultIndex
	}
	return &Store{
		client:   client,
		index:    index,
		maxUsers: defaultMaxUsers,
		logger:   log.WithFields(map[string]interface{}{"component": "search-history", "index": index}),
		now:      time.Now,
	}
}

func (s *Store) Index() string {
	return s.index
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (s *Store) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{s.index}}.Do(ctx, s.client)
	if err != nil {
		return s.mapError(ctx, "ensure_index", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := json.Marshal(indexMapping())
	res, err = esapi.IndicesCreateRequest{Index: s.index, Body: bytes.NewReader(body)}.Do(ctx, s.client)
	if err != nil {
		return s.mapError(ctx, "ensure_index", err)
	}
	defer res.Body.Close()
	// another instance may have created it first
	if res.IsError() && !strings.Contains(readBody(res), "resource_already_exists_exception") {
		return errors.NewSearchQueryFailedError("create_index", fmt.Errorf("status %d", res.StatusCode))
	}
	s.logger.Info("search history index ready", nil)
	return nil
}

// Record appends one search to the index. SearchedAt defaults to now.
func (s *Store) Record(ctx context.Context, entry models.SearchHistoryEntry) (string, error) {
	if entry.SearchedAt.IsZero() {
		entry.SearchedAt = s.now().UTC()
	}
	if entry.SearchMetadata.Source == "" {
		entry.SearchMetadata.Source = "homepage"
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal search entry: %w", err)
	}

	res, err := esapi.IndexRequest{Index: s.index, Body: bytes.NewReader(body)}.Do(ctx, s.client)
	if err != nil {
		return "", s.mapError(ctx, "record_search", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return "", s.responseError("record_search", res)
	}

	var out struct {
		ID string `json:"_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", errors.NewSearchQueryFailedError("record_search", err)
	}
	return out.ID, nil
}

type termsBucket struct {
	Key json.RawMessage `json:"key"`
}

type userBucket struct {
	Key         json.Number `json:"key"`
	Terms       termsAgg    `json:"terms"`
	Cities      termsAgg    `json:"cities"`
	Countries   termsAgg    `json:"countries"`
	Preferences termsAgg    `json:"preferences"`
}

type termsAgg struct {
	Buckets []termsBucket `json:"buckets"`
}

type profileResponse struct {
	Aggregations struct {
		Users struct {
			Buckets []userBucket `json:"buckets"`
		} `json:"users"`
	} `json:"aggregations"`
}

// AggregateProfiles returns one profile per signed-in user who searched
// since the given time. Blank values are dropped and values are deduplicated
// case-insensitively.
func (s *Store) AggregateProfiles(ctx context.Context, since time.Time) ([]models.SearchProfile, error) {
	body, _ := json.Marshal(buildProfileAggregation(since, s.maxUsers))

	res, err := esapi.SearchRequest{Index: []string{s.index}, Body: bytes.NewReader(body)}.Do(ctx, s.client)
	if err != nil {
		return nil, s.mapError(ctx, "aggregate_profiles", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, errors.NewIndexNotFoundError(s.index)
	}
	if res.IsError() {
		return nil, s.responseError("aggregate_profiles", res)
	}

	var parsed profileResponse
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, errors.NewSearchQueryFailedError("aggregate_profiles", err)
	}

	profiles := make([]models.SearchProfile, 0, len(parsed.Aggregations.Users.Buckets))
	for _, b := range parsed.Aggregations.Users.Buckets {
		userID, err := b.Key.Int64()
		if err != nil {
			s.logger.Warn("skipping non-numeric user bucket", map[string]interface{}{"key": b.Key.String()})
			continue
		}
		p := models.SearchProfile{
			UserID:      userID,
			Terms:       bucketValues(b.Terms),
			Cities:      bucketValues(b.Cities),
			Countries:   bucketValues(b.Countries),
			Preferences: bucketValues(b.Preferences),
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// UserHistory is one page of a user's searches, newest first.
type UserHistory struct {
	Searches []models.SearchHistoryEntry `json:"searches"`
	Total    int64                       `json:"total"`
}

func (s *Store) ListForUser(ctx context.Context, userID int64, page, limit int) (*UserHistory, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	body, _ := json.Marshal(buildUserHistoryQuery(userID, (page-1)*limit, limit))

	res, err := esapi.SearchRequest{Index: []string{s.index}, Body: bytes.NewReader(body)}.Do(ctx, s.client)
	if err != nil {
		return nil, s.mapError(ctx, "list_user_searches", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return &UserHistory{Searches: []models.SearchHistoryEntry{}}, nil
	}
	if res.IsError() {
		return nil, s.responseError("list_user_searches", res)
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.SearchHistoryEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewSearchQueryFailedError("list_user_searches", err)
	}

	out := &UserHistory{Searches: make([]models.SearchHistoryEntry, 0, len(parsed.Hits.Hits)), Total: parsed.Hits.Total.Value}
	for _, h := range parsed.Hits.Hits {
		out.Searches = append(out.Searches, h.Source)
	}
	return out, nil
}

// DeleteOlderThan removes searches older than months months and returns how
// many were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, months int) (int64, error) {
	if months <= 0 {
		return 0, fmt.Errorf("retention months must be positive, got %d", months)
	}
	cutoff := s.now().AddDate(0, -months, 0)
	body, _ := json.Marshal(buildOlderThanQuery(cutoff))

	res, err := esapi.DeleteByQueryRequest{
		Index:     []string{s.index},
		Body:      bytes.NewReader(body),
		Conflicts: "proceed",
	}.Do(ctx, s.client)
	if err != nil {
		return 0, s.mapError(ctx, "delete_old_searches", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, s.responseError("delete_old_searches", res)
	}

	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, errors.NewSearchQueryFailedError("delete_old_searches", err)
	}
	return out.Deleted, nil
}

func (s *Store) mapError(ctx context.Context, op string, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewSearchTimeoutError(op)
	}
	return errors.NewElasticsearchConnectionFailedError(err)
}

func (s *Store) responseError(op string, res *esapi.Response) error {
	return errors.NewSearchQueryFailedError(op, fmt.Errorf("status %d: %s", res.StatusCode, readBody(res)))
}

func readBody(res *esapi.Response) string {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	return string(b)
}

func bucketValues(agg termsAgg) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range agg.Buckets {
		var v string
		if err := json.Unmarshal(b.Key, &v); err != nil {
			continue
		}
		// jobs are matched with = ANY, so case variants are distinct values
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
