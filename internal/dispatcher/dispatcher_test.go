// internal/dispatcher/dispatcher_test.go
package dispatcher

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/models"
	"jobboard-notifier/internal/sink"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type delivery struct {
	recipient, subject, body string
}

type fakeSink struct {
	mu         sync.Mutex
	channel    sink.Channel
	DeliverErr error
	deliveries []delivery
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Channel() sink.Channel {
	if f.channel == "" {
		return sink.ChannelEmail
	}
	return f.channel
}

func (f *fakeSink) Deliver(ctx context.Context, recipient, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{recipient, subject, body})
	return f.DeliverErr
}

type memoryLogs struct {
	mu     sync.Mutex
	nextID int64
	logs   []models.NotificationLog
	err    error
}

func (m *memoryLogs) Insert(ctx context.Context, logs []models.NotificationLog) ([]models.NotificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.NotificationLog, len(logs))
	for i, l := range logs {
		m.nextID++
		l.ID = m.nextID
		out[i] = l
		m.logs = append(m.logs, l)
	}
	return out, nil
}

func testUser() models.User {
	return models.User{ID: 10, Name: "Ayşe", Email: "ayse@example.com", Phone: "+905551234567"}
}

func testJobs() []models.Job {
	return []models.Job{
		{ID: 1, Title: "React Developer", Company: "Acme", City: "Istanbul", Country: "Türkiye",
			Preference: models.PreferenceRemote, Description: "Dashboards"},
		{ID: 2, Title: "Node Engineer", Company: "Globex", City: "Istanbul", Country: "Türkiye",
			Preference: models.PreferenceRemote, Description: strings.Repeat("ş", 300)},
	}
}

func createTestDispatcher(t *testing.T, s sink.Sink, logs LogWriter, dedupe Deduper) *Dispatcher {
	t.Helper()
	return New(s, logs, dedupe, NewRenderer("https://jobs.example.com/"), logger.NewNoOpLogger())
}

// ==========================
// Send
// ==========================

func TestDispatcher_Send_JobAlert(t *testing.T) {
	s := &fakeSink{}
	logs := &memoryLogs{}
	d := createTestDispatcher(t, s, logs, nil)

	alert := &models.JobAlert{ID: 3, UserID: 10, AlertName: "Remote Istanbul"}
	result, err := d.Send(context.Background(), Notification{
		Type:      models.NotificationTypeJobAlert,
		Recipient: testUser(),
		Alert:     alert,
		Jobs:      testJobs(),
	})
	require.NoError(t, err)

	require.Len(t, s.deliveries, 1, "one delivery per batch")
	assert.Equal(t, "ayse@example.com", s.deliveries[0].recipient)
	assert.Equal(t, `2 new jobs matching "Remote Istanbul"`, s.deliveries[0].subject)
	assert.Contains(t, s.deliveries[0].body, "https://jobs.example.com/jobs/2")
	assert.Contains(t, s.deliveries[0].body, "https://jobs.example.com/profile/alerts")

	assert.Equal(t, models.NotificationStatusSent, result.Status)
	require.Len(t, result.Logs, 2)
	for i, l := range result.Logs {
		assert.Equal(t, models.NotificationStatusSent, l.Status)
		assert.Equal(t, int64(10), l.UserID)
		assert.Equal(t, int64(3), *l.JobAlertID)
		assert.Equal(t, testJobs()[i].ID, *l.JobID)
		assert.Equal(t, "email", l.DeliveryMethod)
		assert.NotNil(t, l.SentAt)
	}
	assert.Equal(t, "Job alert notification for React Developer", result.Logs[0].Message)
}

func TestDispatcher_Send_RelatedJobs(t *testing.T) {
	s := &fakeSink{}
	d := createTestDispatcher(t, s, &memoryLogs{}, nil)

	result, err := d.Send(context.Background(), Notification{
		Type:      models.NotificationTypeRelatedJob,
		Recipient: testUser(),
		Jobs:      testJobs()[:1],
	})
	require.NoError(t, err)

	assert.Equal(t, "Jobs you might be interested in", s.deliveries[0].subject)
	assert.Contains(t, s.deliveries[0].body, "Create job alerts")
	require.Len(t, result.Logs, 1)
	assert.Nil(t, result.Logs[0].JobAlertID)
	assert.Equal(t, "Related job recommendation: React Developer", result.Logs[0].Message)
}

func TestDispatcher_Send_SinkFailure(t *testing.T) {
	s := &fakeSink{DeliverErr: stderrors.New("smtp: connection refused")}
	logs := &memoryLogs{}
	d := createTestDispatcher(t, s, logs, nil)

	result, err := d.Send(context.Background(), Notification{
		Type:      models.NotificationTypeJobAlert,
		Recipient: testUser(),
		Alert:     &models.JobAlert{ID: 3, AlertName: "Go"},
		Jobs:      testJobs(),
	})
	require.NoError(t, err, "sink failures are recorded, not returned")
	assert.True(t, result.Failed())

	require.Len(t, result.Logs, 1)
	l := result.Logs[0]
	assert.Equal(t, models.NotificationStatusFailed, l.Status)
	assert.Equal(t, "Job Alert Failed", l.Title)
	assert.Nil(t, l.JobID)
	assert.Nil(t, l.SentAt)
	assert.Equal(t, "smtp: connection refused", *l.ErrorMessage)
}

func TestDispatcher_Send_LogStoreFailure(t *testing.T) {
	d := createTestDispatcher(t, &fakeSink{}, &memoryLogs{err: stderrors.New("db down")}, nil)

	_, err := d.Send(context.Background(), Notification{
		Type:      models.NotificationTypeRelatedJob,
		Recipient: testUser(),
		Jobs:      testJobs(),
	})
	assert.EqualError(t, err, "db down")
}

func TestDispatcher_Send_EmptyBatch(t *testing.T) {
	s := &fakeSink{}
	logs := &memoryLogs{}
	d := createTestDispatcher(t, s, logs, nil)

	result, err := d.Send(context.Background(), Notification{Type: models.NotificationTypeJobAlert, Recipient: testUser()})
	require.NoError(t, err)
	assert.Empty(t, result.Logs)
	assert.Empty(t, s.deliveries)
}

func TestDispatcher_Send_SMSUsesPhone(t *testing.T) {
	s := &fakeSink{channel: sink.ChannelSMS}
	d := createTestDispatcher(t, s, &memoryLogs{}, nil)

	result, err := d.Send(context.Background(), Notification{
		Type:      models.NotificationTypeRelatedJob,
		Recipient: testUser(),
		Jobs:      testJobs()[:1],
	})
	require.NoError(t, err)
	assert.Equal(t, "+905551234567", s.deliveries[0].recipient)
	assert.Equal(t, "sms", result.Logs[0].DeliveryMethod)

	// A user without a phone gets a failed log instead of a delivery.
	noPhone := testUser()
	noPhone.Phone = ""
	result, err = d.Send(context.Background(), Notification{
		Type:      models.NotificationTypeRelatedJob,
		Recipient: noPhone,
		Jobs:      testJobs()[:1],
	})
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.Contains(t, *result.Logs[0].ErrorMessage, "no usable sms address")
	assert.Len(t, s.deliveries, 1)
}

// ==========================
// Dedupe
// ==========================

func newTestDeduper(t *testing.T) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisDeduper(client, time.Hour), mr
}

func TestDispatcher_Send_Dedupe(t *testing.T) {
	dedupe, mr := newTestDeduper(t)
	s := &fakeSink{}
	logs := &memoryLogs{}
	d := createTestDispatcher(t, s, logs, dedupe)

	n := Notification{
		Type:      models.NotificationTypeJobAlert,
		Recipient: testUser(),
		Alert:     &models.JobAlert{ID: 3, AlertName: "Go"},
		Jobs:      testJobs()[:1],
	}

	first, err := d.Send(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusSent, first.Status)
	assert.True(t, mr.Exists("notif:sent:job_alert:10:1"))
	assert.Equal(t, time.Hour, mr.TTL("notif:sent:job_alert:10:1"))

	// Same job again plus a new one: only the new one is delivered.
	n.Jobs = testJobs()
	second, err := d.Send(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Deduplicated)
	require.Len(t, second.Logs, 1)
	assert.Equal(t, int64(2), *second.Logs[0].JobID)
	assert.Equal(t, `1 new job matching "Go"`, s.deliveries[1].subject)

	// Everything already delivered: no delivery, not a failure.
	third, err := d.Send(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, 2, third.Deduplicated)
	assert.False(t, third.Failed())
	assert.Empty(t, third.Logs)
	assert.Len(t, s.deliveries, 2)

	// Related-job markers are independent of job-alert markers.
	related, err := d.Send(context.Background(), Notification{
		Type:      models.NotificationTypeRelatedJob,
		Recipient: testUser(),
		Jobs:      testJobs()[:1],
	})
	require.NoError(t, err)
	assert.Equal(t, 0, related.Deduplicated)
}

func TestDispatcher_Send_FailedDeliveryIsNotMarked(t *testing.T) {
	dedupe, mr := newTestDeduper(t)
	d := createTestDispatcher(t, &fakeSink{DeliverErr: stderrors.New("boom")}, &memoryLogs{}, dedupe)

	_, err := d.Send(context.Background(), Notification{
		Type:      models.NotificationTypeRelatedJob,
		Recipient: testUser(),
		Jobs:      testJobs()[:1],
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("notif:sent:related_job:10:1"))
}

func TestDispatcher_Send_DedupeUnavailable(t *testing.T) {
	dedupe, mr := newTestDeduper(t)
	mr.Close()

	s := &fakeSink{}
	d := createTestDispatcher(t, s, &memoryLogs{}, dedupe)

	result, err := d.Send(context.Background(), Notification{
		Type:      models.NotificationTypeRelatedJob,
		Recipient: testUser(),
		Jobs:      testJobs(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationStatusSent, result.Status, "redis outage falls back to sending")
	assert.Len(t, s.deliveries, 1)
}

// ==========================
// Rendering
// ==========================

func TestRenderer(t *testing.T) {
	r := NewRenderer("https://jobs.example.com")
	n := Notification{
		Type:      models.NotificationTypeJobAlert,
		Recipient: models.User{Name: "<b>Ayşe</b>"},
		Alert:     &models.JobAlert{AlertName: "Go"},
		Jobs:      testJobs(),
	}

	body, err := r.Body(n)
	require.NoError(t, err)
	assert.Contains(t, body, "Hi &lt;b&gt;Ayşe&lt;/b&gt;!")
	assert.Contains(t, body, "We found 2 new jobs")
	assert.Contains(t, body, strings.Repeat("ş", 200)+"...")
	assert.NotContains(t, body, strings.Repeat("ş", 201))

	n.Jobs = n.Jobs[:1]
	assert.Equal(t, `1 new job matching "Go"`, r.Subject(n))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("  short ", 200))
	assert.Equal(t, "abc...", excerpt("abcdef", 3))
	assert.Equal(t, "", excerpt("", 10))
}
