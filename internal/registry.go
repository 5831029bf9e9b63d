package internal

import (
	"crypto/rand"
	"log/slog"
	"sync"
	"time"
)

// Registry 房間註冊表
//
// 系統設計考量：
//
//  1. 職責邊界：
//     註冊表只擁有「房間 ID 命名空間」與路由索引，
//     房間內部狀態完全由各房間自己的鎖保護。
//     不同房間的操作因此可以完全並行。
//
//  2. 鎖順序：
//     註冊表鎖只包住 map 操作，絕不在持有房間鎖時取得，
//     反向亦然，避免死鎖。
//
//  3. ID 分配：
//     6 碼大寫英數字，碰撞時重試。分配在註冊表鎖內序列化，
//     保證不會發出重複 ID。
type Registry struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	playerRoom map[string]string // playerID -> roomID

	roomCfg     RoomConfig
	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewRegistry 創建房間註冊表
func NewRegistry(roomCfg RoomConfig, broadcaster Broadcaster, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:       make(map[string]*Room),
		playerRoom:  make(map[string]string),
		roomCfg:     roomCfg,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Create 創建房間，創建者成為唯一玩家兼房主
func (reg *Registry) Create(hostName string) (*Room, Player, error) {
	if hostName == "" {
		return nil, Player{}, ErrEmptyName
	}

	reg.mu.Lock()
	roomID := reg.allocateIDLocked()
	room := NewRoom(roomID, reg.roomCfg, reg.broadcaster, reg.logger)
	reg.rooms[roomID] = room
	reg.mu.Unlock()

	host, err := room.AddPlayer(hostName)
	if err != nil {
		// 新房間加入第一位玩家不可能失敗，這裡只是保險
		reg.mu.Lock()
		delete(reg.rooms, roomID)
		reg.mu.Unlock()
		return nil, Player{}, err
	}

	reg.mu.Lock()
	reg.playerRoom[host.ID] = roomID
	reg.mu.Unlock()

	reg.logger.Info("room created", "room_id", roomID, "host", hostName)
	return room, host, nil
}

// Join 加入既有房間
func (reg *Registry) Join(roomID, playerName string) (*Room, Player, error) {
	if roomID == "" {
		return nil, Player{}, ErrEmptyRoomID
	}
	if playerName == "" {
		return nil, Player{}, ErrEmptyName
	}

	room, err := reg.Lookup(roomID)
	if err != nil {
		return nil, Player{}, err
	}

	player, err := room.AddPlayer(playerName)
	if err != nil {
		return nil, Player{}, err
	}

	reg.mu.Lock()
	reg.playerRoom[player.ID] = roomID
	reg.mu.Unlock()

	reg.logger.Info("player joined",
		"room_id", roomID,
		"player_id", player.ID,
		"name", playerName)
	return room, player, nil
}

// Leave 玩家離開（主動離開與斷線走同一條路徑）
//
// 房主離開時整個房間銷毀：房間先取消計時器並廣播 roomClosed，
// 註冊表再移除房間與所有玩家索引。
func (reg *Registry) Leave(roomID, playerID string) {
	room, err := reg.Lookup(roomID)
	if err != nil {
		return
	}

	hostLeft := room.RemovePlayer(playerID)

	reg.mu.Lock()
	delete(reg.playerRoom, playerID)
	if hostLeft {
		for pid, rid := range reg.playerRoom {
			if rid == roomID {
				delete(reg.playerRoom, pid)
			}
		}
		delete(reg.rooms, roomID)
	}
	reg.mu.Unlock()

	if hostLeft {
		reg.logger.Info("room closed, host left", "room_id", roomID)
	} else {
		reg.logger.Info("player left", "room_id", roomID, "player_id", playerID)
	}
}

// Lookup 查找房間
func (reg *Registry) Lookup(roomID string) (*Room, error) {
	reg.mu.RLock()
	room, ok := reg.rooms[roomID]
	reg.mu.RUnlock()

	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// PlayerRoom 查找玩家所在的房間 ID
func (reg *Registry) PlayerRoom(playerID string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	roomID, ok := reg.playerRoom[playerID]
	return roomID, ok
}

// ListRooms 列出房間（供 HTTP API 使用，支持狀態過濾與分頁）
func (reg *Registry) ListRooms(status RoomStatus, page, limit int) ([]map[string]any, int) {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	var filtered []*Room
	for _, room := range rooms {
		if status != "" && room.Status() != status {
			continue
		}
		filtered = append(filtered, room)
	}

	total := len(filtered)
	start := (page - 1) * limit
	end := start + limit
	if start >= total {
		return []map[string]any{}, total
	}
	if end > total {
		end = total
	}

	result := make([]map[string]any, 0, end-start)
	for _, room := range filtered[start:end] {
		result = append(result, room.State())
	}
	return result, total
}

// Stats 統計資訊
func (reg *Registry) Stats() map[string]any {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	statusCount := make(map[RoomStatus]int)
	totalPlayers := 0
	for _, room := range rooms {
		statusCount[room.Status()]++
		totalPlayers += room.PlayerCount()
	}

	return map[string]any{
		"total_rooms":   len(rooms),
		"total_players": totalPlayers,
		"by_status":     statusCount,
	}
}

// Stop 關閉所有房間（伺服器關機）
func (reg *Registry) Stop() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.rooms = make(map[string]*Room)
	reg.playerRoom = make(map[string]string)
	reg.mu.Unlock()

	for _, room := range rooms {
		room.Close()
	}
	reg.logger.Info("registry stopped", "closed_rooms", len(rooms))
}

// allocateIDLocked 生成未使用的房間 ID（需持有 mu）
func (reg *Registry) allocateIDLocked() string {
	for {
		id := randomRoomID()
		if _, exists := reg.rooms[id]; !exists {
			return id
		}
	}
}

// randomRoomID 生成 6 碼大寫英數字房間 ID
func randomRoomID() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand 失敗時退回時間戳，仍保有唯一性
		nano := time.Now().UnixNano()
		for i := range b {
			b[i] = chars[int(nano)%len(chars)]
			nano /= int64(len(chars))
		}
		return string(b)
	}
	for i := range b {
		b[i] = chars[int(b[i])%len(chars)]
	}
	return string(b)
}
