package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"webmail/backend/internal/auth/jwt"
	"webmail/backend/internal/domain"
	"webmail/backend/internal/middleware"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
	previewLen = 100
)

// Authenticator 校验访问令牌
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*jwt.Claims, error)
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if slices.Contains(allowedOrigins, "*") {
				return true
			}
			origin := r.Header.Get("Origin")
			// 没有 Origin 的非浏览器客户端
			if origin == "" {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeNewMail MessageType = "new_mail"
	MessageTypePing    MessageType = "ping"
	MessageTypePong    MessageType = "pong"
	MessageTypeError   MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMailData 新邮件通知数据
type NewMailData struct {
	ID        int64  `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Preview   string `json:"preview,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接，只接收所属用户的通知
type Client struct {
	ID    string
	Email string

	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	log  *zap.Logger
}

type delivery struct {
	user string
	data []byte
}

// Hub 管理所有WebSocket连接，按用户邮箱分组
type Hub struct {
	users      map[string]map[string]*Client // email -> clientID -> Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan delivery
	done       chan struct{}
	mu         sync.RWMutex
	log        *zap.Logger

	upgrader websocket.Upgrader
	auth     Authenticator
}

// NewHub 创建WebSocket Hub
func NewHub(allowedOrigins []string, auth Authenticator, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		users:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan delivery, sendBuffer),
		done:       make(chan struct{}),
		log:        log,
		upgrader:   upgraderFactory(allowedOrigins),
		auth:       auth,
	}
}

// Run 启动Hub，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			close(h.done)
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.users[client.Email] == nil {
				h.users[client.Email] = make(map[string]*Client)
			}
			h.users[client.Email][client.ID] = client
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String("id", client.ID), zap.String("user", client.Email))

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.broadcast:
			h.deliver(d)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.users[client.Email]
	if !ok {
		return
	}
	if _, ok := clients[client.ID]; !ok {
		return
	}
	delete(clients, client.ID)
	if len(clients) == 0 {
		delete(h.users, client.Email)
	}
	close(client.send)
	h.log.Debug("client unregistered", zap.String("id", client.ID))
}

// ClientCount 返回用户当前的连接数
func (h *Hub) ClientCount(email string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[email])
}

// NotifyNewMail 通知收件人有新邮件。
// 广播队列已满时丢弃通知，不阻塞发送流程。
func (h *Hub) NotifyNewMail(mail *domain.Mail) {
	preview := mail.Body
	if utf8.RuneCountInString(preview) > previewLen {
		preview = string([]rune(preview)[:previewLen])
	}
	data, err := json.Marshal(NewMailData{
		ID:        mail.ID,
		From:      mail.From,
		To:        mail.To,
		Subject:   mail.Subject,
		Preview:   preview,
		Timestamp: mail.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		h.log.Error("failed to marshal new mail data", zap.Error(err))
		return
	}
	msg, err := json.Marshal(&Message{
		Type:      MessageTypeNewMail,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- delivery{user: mail.To, data: msg}:
	default:
		h.log.Warn("broadcast queue full, dropping notification",
			zap.Int64("mail_id", mail.ID),
			zap.String("to", mail.To))
	}
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.users[d.user] {
		select {
		case client.send <- d.data:
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.users {
		for _, client := range clients {
			close(client.send)
		}
	}
	h.users = make(map[string]map[string]*Client)
}

// Handler 处理WebSocket连接，令牌可放在 Authorization 头或 token 查询参数中
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := middleware.ExtractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "需要登录认证"})
			return
		}
		claims, err := h.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "msg": "无效或已过期的访问令牌"})
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")))
			return
		}

		client := &Client{
			ID:    uuid.NewString(),
			Email: claims.Email,
			conn:  conn,
			send:  make(chan []byte, sendBuffer),
			hub:   h,
			log:   h.log,
		}
		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case MessageTypePing:
			c.sendMessage(&Message{Type: MessageTypePong, Timestamp: time.Now()})
		case MessageTypePong:
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		default:
			c.sendMessage(&Message{Type: MessageTypeError, Error: "unknown message type", Timestamp: time.Now()})
		}
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}
	// 持有读锁期间 closeAllClients 无法关闭 send
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	select {
	case <-c.hub.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}
