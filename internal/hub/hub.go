package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Code-Savanna/netpulse/internal/models"
)

// defaultWriteTimeout 单次写操作的截止时间
const defaultWriteTimeout = 5 * time.Second

// Subscriber 一个 WebSocket 订阅连接
// SetWriteDeadline 必须使超过截止时间的 WriteMessage 以错误返回
type Subscriber interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// subscription 订阅连接及其写锁
// gorilla 连接不允许并发写；锁是每连接的，一个慢连接不会串行化其他连接
type subscription struct {
	conn Subscriber
	mu   sync.Mutex
}

// write 带截止时间的串行写
func (s *subscription) write(messageType int, data []byte, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return s.conn.WriteMessage(messageType, data)
}

// Hub 实时广播中心
// 维护订阅者集合，把设备状态更新和新报警推送给所有连接。
// 广播对集合快照并发进行，每个订阅者的发送独立：写超时或写失败
// 只淘汰对应连接，不影响其他订阅者，也不阻塞后续广播和心跳
type Hub struct {
	mu          sync.Mutex
	subscribers map[Subscriber]*subscription

	heartbeatInterval time.Duration
	writeTimeout      time.Duration
	logger            *zap.Logger
}

// NewHub 创建广播中心
func NewHub(heartbeatInterval time.Duration, logger *zap.Logger) *Hub {
	return &Hub{
		subscribers:       make(map[Subscriber]*subscription),
		heartbeatInterval: heartbeatInterval,
		writeTimeout:      defaultWriteTimeout,
		logger:            logger,
	}
}

// Register 注册订阅者
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	h.subscribers[sub] = &subscription{conn: sub}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Info("WebSocket subscriber registered",
		zap.Int("total", count),
	)
}

// Unregister 注销订阅者
// 幂等：重复注销或注销未注册的连接是 no-op
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	if ok {
		delete(h.subscribers, sub)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		h.logger.Info("WebSocket subscriber unregistered",
			zap.Int("total", count),
		)
	}
}

// Count 当前订阅者数量
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// BroadcastDeviceUpdate 推送设备状态快照
func (h *Hub) BroadcastDeviceUpdate(devices []*models.Device) {
	data := make([]map[string]any, 0, len(devices))
	for _, device := range devices {
		data = append(data, device.ToJSON())
	}
	h.broadcast(map[string]any{
		"type": "device_update",
		"data": data,
	})
}

// BroadcastAlert 推送新报警
func (h *Hub) BroadcastAlert(alert *models.Alert) {
	h.broadcast(map[string]any{
		"type": "alert",
		"data": alert.ToJSON(),
	})
}

// broadcast 序列化消息并发送给所有订阅者
func (h *Hub) broadcast(payload map[string]any) {
	message, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast payload",
			zap.Error(err),
		)
		return
	}

	h.sendToAll(websocket.TextMessage, message)
}

// sendToAll 对订阅者快照并发发送，失败（含写超时）的连接在本轮结束后移除
// 整轮耗时以 writeTimeout 为上界，卡死的连接由截止时间判死，不会拖垮心跳
func (h *Hub) sendToAll(messageType int, data []byte) {
	h.mu.Lock()
	snapshot := make([]*subscription, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	var deadMu sync.Mutex
	var dead []*subscription

	for _, sub := range snapshot {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			if err := s.write(messageType, data, h.writeTimeout); err != nil {
				deadMu.Lock()
				dead = append(dead, s)
				deadMu.Unlock()
			}
		}(sub)
	}
	wg.Wait()

	for _, sub := range dead {
		h.Unregister(sub.conn)
		sub.conn.Close()
	}

	if len(dead) > 0 {
		h.logger.Warn("Removed dead WebSocket subscribers",
			zap.Int("removed", len(dead)),
		)
	}
}

// Start 运行心跳循环，ctx 取消后返回
// 周期性向所有订阅者发 ping，无响应（写失败或写超时）的连接被清理
func (h *Hub) Start(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	h.logger.Info("WebSocket hub started",
		zap.Duration("heartbeat_interval", h.heartbeatInterval),
	)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return
		case <-ticker.C:
			h.sendToAll(websocket.PingMessage, nil)
		}
	}
}
