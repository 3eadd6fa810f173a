package notifier

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

type fakeJobSource struct {
	mu    sync.Mutex
	jobs  []models.NotificationJob
	acked []string
}

func (f *fakeJobSource) Read(ctx context.Context, consumer string, count int64) ([]models.NotificationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs := f.jobs
	f.jobs = nil
	if jobs == nil {
		// 模拟队列空时的阻塞等待
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
			return nil, nil
		}
	}
	return jobs, nil
}

func (f *fakeJobSource) Ack(ctx context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, messageID)
	return nil
}

func (f *fakeJobSource) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

type fakeAlertGetter struct {
	alerts map[string]*models.Alert
}

func (f *fakeAlertGetter) GetAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error) {
	alert, ok := f.alerts[alertID]
	if !ok {
		return nil, fmt.Errorf("alert not found: %s", alertID)
	}
	return alert, nil
}

type fakeTransport struct {
	mu        sync.Mutex
	delivered []string // alert IDs
	err       error
}

func (f *fakeTransport) Send(ctx context.Context, alert *models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, alert.AlertID)
	return nil
}

func job(messageID, alertID, channel string) models.NotificationJob {
	return models.NotificationJob{
		AlertID:   alertID,
		TenantID:  "tenant-1",
		Channel:   channel,
		MessageID: messageID,
	}
}

func TestWorker_DeliversAndAcks(t *testing.T) {
	source := &fakeJobSource{}
	getter := &fakeAlertGetter{alerts: map[string]*models.Alert{
		"alert-1": testAlert(models.SeverityCritical),
	}}
	email := &fakeTransport{}
	pool := NewWorkerPool(source, getter, map[string]Transport{
		models.ChannelEmail: email,
	}, 1, zap.NewNop())

	pool.handleJob(context.Background(), "notifier-0", job("1-0", "alert-1", models.ChannelEmail))

	assert.Equal(t, []string{"alert-1"}, email.delivered)
	assert.Equal(t, []string{"1-0"}, source.ackedIDs())
}

func TestWorker_TransportFailureStillAcked(t *testing.T) {
	source := &fakeJobSource{}
	getter := &fakeAlertGetter{alerts: map[string]*models.Alert{
		"alert-1": testAlert(models.SeverityCritical),
	}}
	sms := &fakeTransport{err: fmt.Errorf("gateway down")}
	pool := NewWorkerPool(source, getter, map[string]Transport{
		models.ChannelSMS: sms,
	}, 1, zap.NewNop())

	pool.handleJob(context.Background(), "notifier-0", job("1-0", "alert-1", models.ChannelSMS))

	// 不重试：失败的任务也确认，等批量重发周期补偿
	assert.Equal(t, []string{"1-0"}, source.ackedIDs())
}

func TestWorker_ChannelFailureIsolated(t *testing.T) {
	source := &fakeJobSource{}
	getter := &fakeAlertGetter{alerts: map[string]*models.Alert{
		"alert-1": testAlert(models.SeverityCritical),
	}}
	email := &fakeTransport{}
	sms := &fakeTransport{err: fmt.Errorf("gateway down")}
	pool := NewWorkerPool(source, getter, map[string]Transport{
		models.ChannelEmail: email,
		models.ChannelSMS:   sms,
	}, 1, zap.NewNop())

	ctx := context.Background()
	pool.handleJob(ctx, "notifier-0", job("1-0", "alert-1", models.ChannelSMS))
	pool.handleJob(ctx, "notifier-0", job("1-1", "alert-1", models.ChannelEmail))

	// SMS 失败不影响邮件投递
	assert.Equal(t, []string{"alert-1"}, email.delivered)
	assert.Equal(t, []string{"1-0", "1-1"}, source.ackedIDs())
}

func TestWorker_ResolvedAlertSkipped(t *testing.T) {
	resolved := testAlert(models.SeverityCritical)
	resolved.Resolved = true

	source := &fakeJobSource{}
	getter := &fakeAlertGetter{alerts: map[string]*models.Alert{
		"alert-1": resolved,
	}}
	email := &fakeTransport{}
	pool := NewWorkerPool(source, getter, map[string]Transport{
		models.ChannelEmail: email,
	}, 1, zap.NewNop())

	pool.handleJob(context.Background(), "notifier-0", job("1-0", "alert-1", models.ChannelEmail))

	// 已解决的报警不再投递，任务确认作废
	assert.Empty(t, email.delivered)
	assert.Equal(t, []string{"1-0"}, source.ackedIDs())
}

func TestWorker_UnknownChannelAcked(t *testing.T) {
	source := &fakeJobSource{}
	getter := &fakeAlertGetter{alerts: map[string]*models.Alert{}}
	pool := NewWorkerPool(source, getter, map[string]Transport{}, 1, zap.NewNop())

	pool.handleJob(context.Background(), "notifier-0", job("1-0", "alert-1", "pager"))

	assert.Equal(t, []string{"1-0"}, source.ackedIDs())
}

func TestWorker_MissingAlertAcked(t *testing.T) {
	source := &fakeJobSource{}
	getter := &fakeAlertGetter{alerts: map[string]*models.Alert{}}
	email := &fakeTransport{}
	pool := NewWorkerPool(source, getter, map[string]Transport{
		models.ChannelEmail: email,
	}, 1, zap.NewNop())

	pool.handleJob(context.Background(), "notifier-0", job("1-0", "alert-gone", models.ChannelEmail))

	assert.Empty(t, email.delivered)
	assert.Equal(t, []string{"1-0"}, source.ackedIDs())
}

func TestWorkerPool_StartAndShutdown(t *testing.T) {
	source := &fakeJobSource{
		jobs: []models.NotificationJob{job("1-0", "alert-1", models.ChannelEmail)},
	}
	getter := &fakeAlertGetter{alerts: map[string]*models.Alert{
		"alert-1": testAlert(models.SeverityWarning),
	}}
	email := &fakeTransport{}
	pool := NewWorkerPool(source, getter, map[string]Transport{
		models.ChannelEmail: email,
	}, 2, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		email.mu.Lock()
		defer email.mu.Unlock()
		return len(email.delivered) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	pool.Wait()
}
