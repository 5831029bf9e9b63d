package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// 系統設計問題：
//   如何把權威的房間狀態即時推送給所有玩家，同時接收高頻的移動指令？
//
// 核心挑戰：
//   1. 實時通信：收集、得分、回合結束必須立即推送
//   2. 連接管理：斷線等同離開房間，房主斷線要銷毀整個房間
//   3. 心跳機制：檢測死連接（54s Ping / 60s 讀取超時）
//   4. 輸入保護：移動指令限速，慢客戶端不能拖垮整個房間
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有房間的所有連接
//   ✅ 緩衝 channel - 廣播非阻塞，緩衝滿直接丟棄
//   ✅ rate.Limiter - 每連接的移動限速，超速靜默丟棄
//   ✅ 指令分發 - 入站訊息同步轉成房間操作，由房間鎖串行化

// 心跳與緩衝參數
const (
	pingInterval   = 54 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 1024
	sendBufferSize = 256

	// 移動指令限速：每秒 60 次，容忍 90 的突發
	moveRateLimit = 60
	moveRateBurst = 90
)

// Hub WebSocket 連接中心
//
// 同時扮演兩個角色：
//   - Broadcaster 實作：把房間事件推給該房間的所有連接
//   - 指令入口：把玩家的入站訊息分發成註冊表 / 房間操作
type Hub struct {
	registry    *Registry
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	connections map[string]map[string]*Connection // roomID -> playerID -> Connection
	mu          sync.RWMutex
}

// Connection 單一玩家的 WebSocket 連接
type Connection struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	limiter   *rate.Limiter
	closeOnce sync.Once

	mu       sync.Mutex
	playerID string
	roomID   string
}

// wsEvent 對外事件的線上格式
type wsEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsCommand 入站指令的線上格式
type wsCommand struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewHub 創建 WebSocket Hub
//
// Hub 與 Registry 互相引用（Hub 分發指令給 Registry，
// Registry 透過 Hub 廣播），所以 Registry 在創建後用 SetRegistry 綁定。
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[string]map[string]*Connection),
	}
}

// SetRegistry 綁定房間註冊表
func (hub *Hub) SetRegistry(registry *Registry) {
	hub.registry = registry
}

// Publish 實作 Broadcaster：把事件推給房間的所有連接
//
// 呼叫方持有房間鎖，這裡只做序列化與非阻塞的 channel 發送，
// 事件順序與房間操作順序一致。roomClosed 廣播後連接全部解除訂閱。
func (hub *Hub) Publish(roomID, event string, payload any) {
	message, err := json.Marshal(wsEvent{Event: event, Data: payload})
	if err != nil {
		hub.logger.Error("marshal event failed", "event", event, "error", err)
		return
	}

	hub.mu.Lock()
	conns := hub.connections[roomID]
	for _, c := range conns {
		select {
		case c.send <- message:
		default:
			// 緩衝滿了，丟棄事件（慢客戶端不能阻塞房間）
			hub.logger.Warn("send buffer full, dropping event",
				"room_id", roomID, "event", event)
		}
	}
	if event == EventRoomClosed {
		for _, c := range conns {
			c.clearSession()
		}
		delete(hub.connections, roomID)
	}
	hub.mu.Unlock()
}

// ServeWS 處理 WebSocket 升級
//
// 連接建立時尚未屬於任何房間，後續由 createRoom / joinRoom 指令綁定。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &Connection{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		hub:     hub,
		limiter: rate.NewLimiter(rate.Limit(moveRateLimit), moveRateBurst),
	}

	go c.writePump()
	go c.readPump()

	hub.logger.Info("websocket connected", "remote", r.RemoteAddr)
}

// Stop 關閉所有連接
func (hub *Hub) Stop() {
	hub.mu.Lock()
	for _, conns := range hub.connections {
		for _, c := range conns {
			c.close()
		}
	}
	hub.connections = make(map[string]map[string]*Connection)
	hub.mu.Unlock()

	hub.logger.Info("websocket hub stopped")
}

// ConnectionCount 各房間的連接數
func (hub *Hub) ConnectionCount() map[string]int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	result := make(map[string]int)
	for roomID, conns := range hub.connections {
		result[roomID] = len(conns)
	}
	return result
}

// register 把連接掛進房間
func (hub *Hub) register(c *Connection, roomID, playerID string) {
	c.setSession(roomID, playerID)

	hub.mu.Lock()
	if hub.connections[roomID] == nil {
		hub.connections[roomID] = make(map[string]*Connection)
	}
	hub.connections[roomID][playerID] = c
	hub.mu.Unlock()
}

// unregister 把連接從房間移除
func (hub *Hub) unregister(roomID, playerID string) {
	hub.mu.Lock()
	if conns, ok := hub.connections[roomID]; ok {
		delete(conns, playerID)
		if len(conns) == 0 {
			delete(hub.connections, roomID)
		}
	}
	hub.mu.Unlock()
}

// readPump 讀取並分發客戶端指令
func (c *Connection) readPump() {
	defer func() {
		c.handleDisconnect()
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket read error", "error", err)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Debug("malformed command", "error", err)
			continue
		}
		c.dispatch(cmd)
	}
}

// writePump 寫出事件並維持心跳
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量送出佇列中的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch 把入站指令轉成房間操作
func (c *Connection) dispatch(cmd wsCommand) {
	switch cmd.Type {
	case "createRoom":
		c.handleCreateRoom(cmd.Data)
	case "joinRoom":
		c.handleJoinRoom(cmd.Data)
	case "startGame":
		c.handleStartGame()
	case "playerMove":
		c.handlePlayerMove(cmd.Data)
	case "endGame":
		c.handleEndGame()
	case "leaveRoom":
		c.handleLeaveRoom()
	default:
		c.hub.logger.Debug("unknown command", "type", cmd.Type)
	}
}

func (c *Connection) handleCreateRoom(data json.RawMessage) {
	if _, joined := c.session(); joined != "" {
		c.sendError("You are already in a room!")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(data, &req)

	room, host, err := c.hub.registry.Create(req.Name)
	if err != nil {
		c.sendError(ErrorMessage(err))
		return
	}

	c.hub.register(c, room.ID, host.ID)
	c.sendEvent(EventRoomCreated, JoinedPayload{
		RoomID:   room.ID,
		PlayerID: host.ID,
		IsHost:   true,
	})
	// 創建時房間還沒有其他訂閱者，名單直接回給創建者
	c.sendEvent(EventPlayersUpdated, room.Players())
}

func (c *Connection) handleJoinRoom(data json.RawMessage) {
	if _, joined := c.session(); joined != "" {
		c.sendError("You are already in a room!")
		return
	}

	var req struct {
		RoomID string `json:"roomId"`
		Name   string `json:"name"`
	}
	_ = json.Unmarshal(data, &req)

	room, player, err := c.hub.registry.Join(req.RoomID, req.Name)
	if err != nil {
		c.sendError(ErrorMessage(err))
		return
	}

	// 房間內的 playersUpdated 在加入當下已廣播給既有成員，
	// 新成員此刻才訂閱，名單另行補送
	c.hub.register(c, room.ID, player.ID)
	c.sendEvent(EventRoomJoined, JoinedPayload{
		RoomID:   room.ID,
		PlayerID: player.ID,
		IsHost:   false,
	})
	c.sendEvent(EventPlayersUpdated, room.Players())
}

func (c *Connection) handleStartGame() {
	playerID, roomID := c.session()
	if roomID == "" {
		c.sendError("You are not in a room!")
		return
	}

	room, err := c.hub.registry.Lookup(roomID)
	if err != nil {
		c.sendError(ErrorMessage(err))
		return
	}

	if err := room.Start(playerID); err != nil {
		if errors.Is(err, ErrNotHost) {
			c.sendError("Only host can start the game!")
			return
		}
		c.sendError(ErrorMessage(err))
	}
}

func (c *Connection) handlePlayerMove(data json.RawMessage) {
	// 超速的移動直接丟棄，不回報錯誤
	if !c.limiter.Allow() {
		return
	}

	playerID, roomID := c.session()
	if roomID == "" {
		return
	}

	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	room, err := c.hub.registry.Lookup(roomID)
	if err != nil {
		return
	}
	room.Move(playerID, req.X, req.Y)
}

func (c *Connection) handleEndGame() {
	playerID, roomID := c.session()
	if roomID == "" {
		c.sendError("You are not in a room!")
		return
	}

	room, err := c.hub.registry.Lookup(roomID)
	if err != nil {
		c.sendError(ErrorMessage(err))
		return
	}

	if err := room.End(playerID); err != nil {
		if errors.Is(err, ErrNotHost) {
			c.sendError("Only host can end the game!")
			return
		}
		c.sendError(ErrorMessage(err))
	}
}

func (c *Connection) handleLeaveRoom() {
	playerID, roomID := c.session()
	if roomID == "" {
		return
	}

	// 房主離開時 roomClosed 廣播會解除整個房間的訂閱
	c.hub.unregister(roomID, playerID)
	c.hub.registry.Leave(roomID, playerID)
	c.clearSession()
}

// handleDisconnect 斷線等同離開房間
func (c *Connection) handleDisconnect() {
	c.handleLeaveRoom()
}

// sendEvent 只發給這條連接（roomCreated / roomJoined / error）
func (c *Connection) sendEvent(event string, payload any) {
	message, err := json.Marshal(wsEvent{Event: event, Data: payload})
	if err != nil {
		c.hub.logger.Error("marshal event failed", "event", event, "error", err)
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

func (c *Connection) sendError(message string) {
	c.sendEvent(EventError, message)
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
	c.conn.Close()
}

func (c *Connection) setSession(roomID, playerID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.playerID = playerID
	c.mu.Unlock()
}

func (c *Connection) clearSession() {
	c.setSession("", "")
}

// session 返回 (playerID, roomID)
func (c *Connection) session() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID, c.roomID
}
