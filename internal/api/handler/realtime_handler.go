package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"skill-swap/backend/internal/realtime"
	"skill-swap/backend/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Subscriber 变更事件订阅接口（由 realtime.Broker 实现）
type Subscriber interface {
	Subscribe(filter realtime.Filter) *realtime.Subscription
}

// changeMessage 推送给客户端的变更信号，客户端收到后重新拉取数据
type changeMessage struct {
	Table    string              `json:"table"`
	Type     realtime.ChangeType `json:"type"`
	RecordID string              `json:"record_id"`
	At       time.Time           `json:"at"`
}

// RealtimeHandler WebSocket 变更推送
type RealtimeHandler struct {
	broker   Subscriber
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewRealtimeHandler 创建 RealtimeHandler；allowOrigins 与 CORS 配置一致
func NewRealtimeHandler(broker Subscriber, allowOrigins []string, logger *zap.Logger) *RealtimeHandler {
	origins := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}

	return &RealtimeHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// 非浏览器客户端不带 Origin
				return origin == "" || origins[origin]
			},
		},
		logger: logger,
	}
}

// Subscribe 订阅数据变更
// GET /api/v1/realtime?tables=profiles,swap_requests
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	me, ok := MustGetIdentity(c)
	if !ok {
		return
	}

	tables, ok := parseTables(c.Query("tables"))
	if !ok {
		response.BadRequest(c, 10001, "tables 参数无效，可选 profiles、swap_requests")
		return
	}

	filter := realtime.Filter{
		Tables: tables,
		UserID: me.UserID,
		All:    me.IsAdmin(),
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已写入 HTTP 错误响应
		h.logger.Debug("WebSocket 升级失败", zap.Error(err))
		return
	}

	sub := h.broker.Subscribe(filter)
	h.logger.Info("实时订阅建立",
		zap.String("user_id", me.UserID),
		zap.Strings("tables", filter.Tables),
	)

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)

	h.logger.Info("实时订阅结束", zap.String("user_id", me.UserID))
}

// readPump 只处理控制帧；客户端断开时关闭 done
func (h *RealtimeHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket 读取异常", zap.Error(err))
			}
			return
		}
	}
}

func (h *RealtimeHandler) writePump(conn *websocket.Conn, sub *realtime.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Broker 关闭（服务停机）
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			msg := changeMessage{Table: ev.Table, Type: ev.Type, RecordID: ev.RecordID, At: ev.At}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// parseTables 解析 tables 参数；为空表示订阅全部表
// 非空但不含任何已知表时返回 false，不能退化为全部表
func parseTables(raw string) ([]string, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	var tables []string
	for _, t := range strings.Split(raw, ",") {
		switch t = strings.TrimSpace(t); t {
		case realtime.TableProfiles, realtime.TableSwapRequests:
			tables = append(tables, t)
		}
	}
	return tables, len(tables) > 0
}
