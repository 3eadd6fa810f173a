package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

type fakeSubscriber struct {
	mu       sync.Mutex
	messages [][]byte
	types    []int
	writeErr error
	closed   bool
}

func (f *fakeSubscriber) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.types = append(f.types, messageType)
	f.messages = append(f.messages, data)
	return nil
}

func (f *fakeSubscriber) SetWriteDeadline(t time.Time) error {
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSubscriber) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeSubscriber) lastMessage() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

// stalledSubscriber 写操作卡死的连接（socket 静默断开），只在截止时间到达后以错误返回
type stalledSubscriber struct {
	mu       sync.Mutex
	deadline time.Time
	closed   bool
}

func (s *stalledSubscriber) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

func (s *stalledSubscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	deadline := s.deadline
	s.mu.Unlock()
	time.Sleep(time.Until(deadline))
	return fmt.Errorf("write timeout")
}

func (s *stalledSubscriber) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func newTestHub() *Hub {
	return NewHub(10*time.Second, zap.NewNop())
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := newTestHub()
	sub := &fakeSubscriber{}

	h.Register(sub)
	assert.Equal(t, 1, h.Count())

	h.Unregister(sub)
	assert.Equal(t, 0, h.Count())

	// 重复注销是 no-op
	h.Unregister(sub)
	assert.Equal(t, 0, h.Count())
}

func TestHub_BroadcastDeviceUpdatePayload(t *testing.T) {
	h := newTestHub()
	sub := &fakeSubscriber{}
	h.Register(sub)

	now := time.Now().UTC()
	h.BroadcastDeviceUpdate([]*models.Device{
		{
			DeviceID:   "d1",
			DeviceName: "core-router",
			IPAddress:  "10.0.0.5",
			Status:     models.DeviceStatusOnline,
			LastSeen:   &now,
		},
	})

	require.Equal(t, 1, sub.messageCount())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(sub.lastMessage(), &payload))
	assert.Equal(t, "device_update", payload["type"])

	data, ok := payload["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	device := data[0].(map[string]any)
	assert.Equal(t, "d1", device["id"])
	assert.Equal(t, "online", device["status"])
}

func TestHub_BroadcastAlertPayload(t *testing.T) {
	h := newTestHub()
	sub := &fakeSubscriber{}
	h.Register(sub)

	deviceID := "d1"
	h.BroadcastAlert(&models.Alert{
		AlertID:   "alert-1",
		TenantID:  "tenant-1",
		DeviceID:  &deviceID,
		AlertType: "high_cpu",
		Severity:  models.SeverityCritical,
		Message:   "CPU usage is critical",
		CreatedAt: time.Now().UTC(),
	})

	require.Equal(t, 1, sub.messageCount())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(sub.lastMessage(), &payload))
	assert.Equal(t, "alert", payload["type"])

	data := payload["data"].(map[string]any)
	assert.Equal(t, "alert-1", data["id"])
	assert.Equal(t, "critical", data["severity"])
	assert.Equal(t, "d1", data["device_id"])
}

func TestHub_FailedSubscriberRemovedOthersStillReceive(t *testing.T) {
	h := newTestHub()
	good1 := &fakeSubscriber{}
	bad := &fakeSubscriber{writeErr: fmt.Errorf("broken pipe")}
	good2 := &fakeSubscriber{}

	h.Register(good1)
	h.Register(bad)
	h.Register(good2)

	h.BroadcastAlert(&models.Alert{AlertID: "alert-1", Severity: models.SeverityWarning})

	// 健康订阅者都收到消息
	assert.Equal(t, 1, good1.messageCount())
	assert.Equal(t, 1, good2.messageCount())

	// 失败的连接被移除并关闭
	assert.Equal(t, 2, h.Count())
	assert.True(t, bad.closed)

	// 后续广播不再触达已移除的连接
	h.BroadcastAlert(&models.Alert{AlertID: "alert-2", Severity: models.SeverityWarning})
	assert.Equal(t, 2, good1.messageCount())
	assert.Equal(t, 2, good2.messageCount())
}

func TestHub_StalledSubscriberDoesNotBlockOthers(t *testing.T) {
	h := newTestHub()
	h.writeTimeout = 20 * time.Millisecond

	stalled := &stalledSubscriber{}
	healthy := &fakeSubscriber{}
	h.Register(stalled)
	h.Register(healthy)

	// 第一轮：卡死的连接在写截止时间处判死并被移除，健康连接照常收到
	start := time.Now()
	h.BroadcastAlert(&models.Alert{AlertID: "alert-1", Severity: models.SeverityWarning})
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, 1, healthy.messageCount())
	assert.Equal(t, 1, h.Count())
	stalled.mu.Lock()
	assert.True(t, stalled.closed)
	stalled.mu.Unlock()

	// 第二轮不再受卡死连接影响
	h.BroadcastAlert(&models.Alert{AlertID: "alert-2", Severity: models.SeverityWarning})
	assert.Equal(t, 2, healthy.messageCount())
}

func TestHub_BroadcastNoSubscribers(t *testing.T) {
	h := newTestHub()

	// 无订阅者时广播不 panic
	h.BroadcastDeviceUpdate(nil)
	h.BroadcastAlert(&models.Alert{AlertID: "alert-1"})
}

func TestHub_HeartbeatReapsDeadConnections(t *testing.T) {
	h := NewHub(10*time.Millisecond, zap.NewNop())
	good := &fakeSubscriber{}
	dead := &fakeSubscriber{writeErr: fmt.Errorf("connection reset")}

	h.Register(good)
	h.Register(dead)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return h.Count() == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, dead.closed)

	// 健康连接收到的是 ping 帧
	good.mu.Lock()
	require.NotEmpty(t, good.types)
	assert.Equal(t, websocket.PingMessage, good.types[0])
	good.mu.Unlock()

	cancel()
	<-done
}
