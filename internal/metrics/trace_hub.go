// =============================================================================
// 文件: internal/metrics/trace_hub.go
// 描述: WebSocket 事件流 - 把仿真追踪事件以 JSON 推送给订阅者
// =============================================================================
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrcgq/rdtsim/internal/trace"
)

const (
	clientQueueSize = 1024
	writeTimeout    = 10 * time.Second
	replayLimit     = 100
)

// TraceHub 事件广播中心, 实现 trace.Sink 与 http.Handler
type TraceHub struct {
	upgrader websocket.Upgrader
	history  *trace.History

	clients map[*traceClient]struct{}
	mu      sync.RWMutex
	closed  bool

	// 统计
	dropped   uint64
	broadcast uint64
}

type traceClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewTraceHub 创建广播中心。history 非空时, 新订阅者先收到最近的事件。
func NewTraceHub(history *trace.History) *TraceHub {
	return &TraceHub{
		history: history,
		clients: make(map[*traceClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Record 实现 trace.Sink。慢订阅者的事件会被丢弃, 不阻塞仿真。
func (h *TraceHub) Record(ev trace.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed || len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	atomic.AddUint64(&h.broadcast, 1)
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
}

// ServeHTTP 升级为 WebSocket 并开始推送
func (h *TraceHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &traceClient{conn: conn, send: make(chan []byte, clientQueueSize)}

	// 先排入历史事件 (最旧在前)
	if h.history != nil {
		recent := h.history.Events(replayLimit)
		for i := len(recent) - 1; i >= 0; i-- {
			if data, err := json.Marshal(recent[i]); err == nil {
				c.send <- data
			}
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop 只用于感知对端关闭
func (h *TraceHub) readLoop(c *traceClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *TraceHub) writeLoop(c *traceClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func (h *TraceHub) remove(c *traceClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.once.Do(func() { close(c.send) })
	}
}

// Clients 当前订阅者数量
func (h *TraceHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped 因订阅者过慢而丢弃的消息数
func (h *TraceHub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}

// Close 关闭所有订阅者
func (h *TraceHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*traceClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.once.Do(func() { close(c.send) })
	}
}

func (h *TraceHub) String() string {
	return fmt.Sprintf("TraceHub(clients=%d, broadcast=%d, dropped=%d)",
		h.Clients(), atomic.LoadUint64(&h.broadcast), h.Dropped())
}
