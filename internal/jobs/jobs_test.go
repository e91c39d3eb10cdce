package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Spok95/learning-platform/internal/mailer"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/Spok95/learning-platform/internal/subscriptions"
	"github.com/Spok95/learning-platform/internal/testutil/memstore"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMail struct {
	mu sync.Mutex
	to []string
}

func (f *fakeMail) SendAsync(_ mailer.Template, to string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
}

type fakeNotify struct {
	chats []int64
	texts []string
}

func (f *fakeNotify) Notify(_ context.Context, chatID int64, text string) {
	f.chats = append(f.chats, chatID)
	f.texts = append(f.texts, text)
}

func reminderCount(channel, outcome string) float64 {
	return testutil.ToFloat64(classReminders.WithLabelValues(channel, outcome))
}

func TestClassReminders(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)
	st := memstore.New()
	f := st.SeedPair(nil, now.AddDate(0, 0, -5), nil)

	chat := int64(555)
	teacher := f.Teacher
	teacher.TelegramChatID = &chat
	st.PutUser(&teacher)

	add := func(at time.Time, status models.SessionStatus) int64 {
		cs := &models.ClassSession{StudentID: f.Student.ID, TeacherID: f.Teacher.ID, SubscriptionID: f.Subscription.ID, StartTime: at, Status: status}
		st.PutSession(cs)
		return cs.ID
	}
	soon := add(now.Add(3*time.Hour), models.SessionScheduled)
	add(now.Add(30*time.Hour), models.SessionScheduled)
	add(now.Add(-time.Hour), models.SessionScheduled)
	add(now.Add(2*time.Hour), models.SessionInProgress)

	mail := &fakeMail{}
	notify := &fakeNotify{}
	r := &ClassReminders{Store: st, Mail: mail, Notify: notify, Within: 24 * time.Hour, Loc: time.UTC, Now: func() time.Time { return now }}

	emailBefore, tgBefore := reminderCount("email", "queued"), reminderCount("telegram", "queued")
	n, err := r.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{f.Student.Email}, mail.to)
	assert.Equal(t, []int64{555}, notify.chats)
	assert.Equal(t, []string{"Reminder: class with " + f.Student.FullName + " at Tue, Jun 10 2025 12:00"}, notify.texts)
	assert.Equal(t, emailBefore+1, reminderCount("email", "queued"))
	assert.Equal(t, tgBefore+1, reminderCount("telegram", "queued"))

	cs, err := st.GetSession(ctx, soon)
	require.NoError(t, err)
	assert.True(t, cs.ReminderSent)

	// second pass finds nothing new
	n, err = r.Process(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, mail.to, 1)
}

func TestClassReminders_CountsOutcomes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.June, 11, 9, 0, 0, 0, time.UTC)
	st := memstore.New()
	f := st.SeedPair(nil, now.AddDate(0, 0, -5), nil)

	// учитель без чата, второй урок у несуществующего ученика
	st.PutSession(&models.ClassSession{StudentID: f.Student.ID, TeacherID: f.Teacher.ID, SubscriptionID: f.Subscription.ID, StartTime: now.Add(time.Hour), Status: models.SessionScheduled})
	st.PutSession(&models.ClassSession{StudentID: 9999, TeacherID: f.Teacher.ID, SubscriptionID: f.Subscription.ID, StartTime: now.Add(2 * time.Hour), Status: models.SessionScheduled})

	noChat, failed := reminderCount("telegram", "no_chat"), reminderCount("lookup", "failed")
	notify := &fakeNotify{}
	r := &ClassReminders{Store: st, Mail: &fakeMail{}, Notify: notify, Now: func() time.Time { return now }}

	n, err := r.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, notify.chats)
	assert.Equal(t, noChat+1, reminderCount("telegram", "no_chat"))
	assert.Equal(t, failed+1, reminderCount("lookup", "failed"))
}

func TestRunnerOnce_CountsErrorsAndPanics(t *testing.T) {
	r := New(context.Background(), nil)

	before := testutil.ToFloat64(jobErrors.WithLabelValues("test_once"))
	require.NoError(t, r.Once("test_once", func(context.Context) error { return nil }))
	assert.Error(t, r.Once("test_once", func(context.Context) error { return errors.New("boom") }))
	assert.Error(t, r.Once("test_once", func(context.Context) error { panic("kaboom") }))

	assert.Equal(t, before+2, testutil.ToFloat64(jobErrors.WithLabelValues("test_once")))
	assert.Equal(t, float64(3), testutil.ToFloat64(jobRuns.WithLabelValues("test_once")))
}

func TestRunnerEvery_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	calls := 0
	New(ctx, nil).Every(5*time.Millisecond, "test_every", func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
}

type fakeScanner struct{ called bool }

func (f *fakeScanner) ScanForRenewal(context.Context, time.Time) (*subscriptions.RenewalReport, error) {
	f.called = true
	return &subscriptions.RenewalReport{}, nil
}

func TestRenewalScanJob(t *testing.T) {
	s := &fakeScanner{}
	require.NoError(t, RenewalScan(s)(context.Background()))
	assert.True(t, s.called)
}
