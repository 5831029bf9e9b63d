package internal

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 系統設計問題：
//   如何讓一個即時競技房間在多名玩家高頻移動下保持狀態一致？
//
// 核心挑戰：
//   1. 狀態管理：房間狀態機（lobby → active → ended → lobby）
//   2. 並發控制：兩名玩家幾乎同時碰到同一顆點，只能有一人得分
//   3. 計時事件：回合倒數、特殊點數生成都會回呼進房間
//   4. 資源回收：回合結束或房主離開時，計時器不能打到已重置 / 已銷毀的房間
//
// 設計方案：
//   ✅ 單一互斥鎖 - 房間內所有變更（指令與計時回呼）嚴格串行
//   ✅ 回合世代計數 - 過期的計時器觸發成為 no-op
//   ✅ 事件廣播 - 持鎖發佈，事件順序與操作順序一致
//   ✅ 房間彼此獨立 - 不同房間完全並行，互不共享可變狀態

// RoomStatus 房間狀態
//
// 狀態轉換規則：
//   - lobby → active：房主開始回合
//   - active → ended：倒數結束或房主提前結束
//   - ended → lobby：結算廣播後立即自動轉換（保留玩家、清空點數、分數歸零）
//
// 不存在 lobby → ended 或 ended → active 的直接轉換。
type RoomStatus string

const (
	StatusLobby  RoomStatus = "lobby"  // 等待中，可加入
	StatusActive RoomStatus = "active" // 回合進行中，兩個計時器都在跑
	StatusEnded  RoomStatus = "ended"  // 結算中的瞬態，結算完立即回到 lobby
)

// Player 玩家
type Player struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Score  int     `json:"score"`
	Color  string  `json:"color"`
	IsHost bool    `json:"isHost"`
}

// RoomConfig 房間規則配置
type RoomConfig struct {
	RoundDuration   time.Duration // 回合長度（預設 60s）
	SpecialInterval time.Duration // 特殊點數生成間隔（預設 10s）
	InitialDots     int           // 回合開始時的一般點數數量（預設 20）
	MaxPlayers      int           // 房間人數上限（預設 8）
}

// Room 遊戲房間
//
// 並發模型：
//   - mu 保護房間內所有可變狀態，包括玩家、點數場與狀態機
//   - 指令（移動、開始、結束）與計時回呼都先取得 mu 才動手，
//     單一邏輯寫者保證同一顆點系統範圍內最多被收集一次
//   - 不做更細粒度的鎖：逐欄位上鎖無法阻止重複收集的競態
type Room struct {
	ID string

	mu      sync.Mutex
	status  RoomStatus
	hostID  string
	players map[string]*Player
	order   []string // 玩家加入順序（廣播名單與顏色分配依據）
	field   *DotField
	cfg     RoomConfig
	rng     *rand.Rand

	round     int // 回合世代，每次開始遞增；過期計時器據此自判失效
	clock     *gameClock
	scheduler *specialDotScheduler
	closed    bool

	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewRoom 創建房間（lobby 狀態，尚無玩家）
func NewRoom(id string, cfg RoomConfig, broadcaster Broadcaster, logger *slog.Logger) *Room {
	if cfg.RoundDuration <= 0 {
		cfg.RoundDuration = 60 * time.Second
	}
	if cfg.SpecialInterval <= 0 {
		cfg.SpecialInterval = 10 * time.Second
	}
	if cfg.InitialDots <= 0 {
		cfg.InitialDots = 20
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = 8
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Room{
		ID:          id,
		status:      StatusLobby,
		players:     make(map[string]*Player),
		field:       NewDotField(rng),
		cfg:         cfg,
		rng:         rng,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// AddPlayer 加入玩家
//
// 第一位加入者成為房主。顏色按現有人數對調色盤長度取模分配，
// 位置在重生範圍內隨機。
func (r *Room) AddPlayer(name string) (Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Player{}, ErrRoomNotFound
	}
	if r.status != StatusLobby {
		return Player{}, ErrGameInProgress
	}
	if len(r.players) >= r.cfg.MaxPlayers {
		return Player{}, ErrRoomFull
	}

	x, y := randomSpawn(r.rng)
	player := &Player{
		ID:     uuid.NewString(),
		Name:   name,
		X:      x,
		Y:      y,
		Color:  playerColors[len(r.players)%len(playerColors)],
		IsHost: len(r.players) == 0,
	}
	r.players[player.ID] = player
	r.order = append(r.order, player.ID)
	if player.IsHost {
		r.hostID = player.ID
	}

	r.broadcaster.Publish(r.ID, EventPlayersUpdated, r.snapshotLocked())
	return *player, nil
}

// RemovePlayer 移除玩家（離開或斷線）
//
// 房主離開時房間直接銷毀：不轉移房主，計時器立即取消，
// 其餘訂閱者收到 roomClosed。回傳 hostLeft 讓註冊表決定是否刪除房間。
func (r *Room) RemovePlayer(playerID string) (hostLeft bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if _, ok := r.players[playerID]; !ok {
		return false
	}

	if playerID == r.hostID {
		r.closeLocked()
		r.broadcaster.Publish(r.ID, EventRoomClosed, struct{}{})
		return true
	}

	delete(r.players, playerID)
	for i, id := range r.order {
		if id == playerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.broadcaster.Publish(r.ID, EventPlayersUpdated, r.snapshotLocked())
	return false
}

// Start 開始回合（限房主，限 lobby 狀態）
//
// 成功時：分數歸零、位置重抽、生成初始點數、武裝兩個計時器、
// 廣播 gameStarted（完整玩家與點數名單 + 回合秒數）。
func (r *Room) Start(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	if playerID != r.hostID {
		return ErrNotHost
	}
	if r.status != StatusLobby {
		return ErrAlreadyActive
	}

	for _, id := range r.order {
		p := r.players[id]
		p.Score = 0
		p.X, p.Y = randomSpawn(r.rng)
	}
	r.field.SpawnInitial(r.cfg.InitialDots)

	r.round++
	generation := r.round
	r.clock = newGameClock(r.cfg.RoundDuration, func() {
		r.onClockExpired(generation)
	})
	r.scheduler = newSpecialDotScheduler(r.cfg.SpecialInterval, func() {
		r.onSpecialTick(generation)
	})

	r.status = StatusActive
	r.broadcaster.Publish(r.ID, EventGameStarted, GameStartedPayload{
		Players:  r.snapshotLocked(),
		Dots:     r.field.Dots(),
		GameTime: int(r.cfg.RoundDuration / time.Second),
	})

	r.logger.Info("round started",
		"room_id", r.ID,
		"players", len(r.players),
		"dots", r.field.Count(),
		"duration", r.cfg.RoundDuration)
	return nil
}

// End 提前結束回合（限房主）
//
// 回合未進行時的 End 視為無害的過期訊息，靜默忽略。
func (r *Room) End(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	if playerID != r.hostID {
		return ErrNotHost
	}
	if r.status != StatusActive {
		return nil
	}

	r.resolveLocked()
	return nil
}

// Move 處理玩家移動
//
// 回合未進行或玩家不存在時靜默忽略：狀態轉換期間客戶端的移動訊息
// 遲到是正常現象，不是錯誤。位置先收斂到競技場邊界，再做收集判定。
func (r *Room) Move(playerID string, x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.status != StatusActive {
		return
	}
	player, ok := r.players[playerID]
	if !ok {
		return
	}

	player.X, player.Y = clampToArena(x, y)

	collected, replacement, hit := r.field.CheckCollision(player)
	if hit {
		r.broadcaster.Publish(r.ID, EventDotCollected, DotCollectedPayload{
			PlayerID: playerID,
			DotID:    collected.ID,
			NewDot:   replacement,
			Points:   collected.Points,
			DotType:  collected.Type,
		})
	}

	r.broadcaster.Publish(r.ID, EventPlayerMoved, MovedPayload{
		PlayerID: playerID,
		X:        player.X,
		Y:        player.Y,
	})

	if hit {
		r.broadcaster.Publish(r.ID, EventScoresUpdated, r.snapshotLocked())
	}
}

// Close 關閉房間（伺服器關機或註冊表清理）
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closeLocked()
	r.broadcaster.Publish(r.ID, EventRoomClosed, struct{}{})
}

// onClockExpired 回合倒數到期（GameClock 回呼）
func (r *Room) onClockExpired(generation int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 世代不符代表回合已被提前結束或重開，這次觸發作廢
	if r.closed || r.status != StatusActive || r.round != generation {
		return
	}
	r.resolveLocked()
}

// onSpecialTick 特殊點數生成（SpecialDotScheduler 回呼）
func (r *Room) onSpecialTick(generation int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.status != StatusActive || r.round != generation {
		return
	}

	dot := r.field.SpawnSpecial()
	r.broadcaster.Publish(r.ID, EventSpecialDotAdded, dot)
	r.logger.Debug("special dot added", "room_id", r.ID, "dot_id", dot.ID)
}

// resolveLocked 回合結算（需持有 mu）
//
// 倒數到期與房主提前結束收斂到同一條路徑：
// 先取消計時器並快照分數，廣播結果後才重置狀態，最後回到 lobby。
// ended 是瞬態——只存在於這個函數的執行期間。
func (r *Room) resolveLocked() {
	r.stopTimersLocked()
	r.status = StatusEnded

	snapshot := r.snapshotLocked()
	result := ResolveRound(snapshot)

	r.broadcaster.Publish(r.ID, EventGameEnded, GameEndedPayload{
		ResultMessage: result.Message,
		FinalScores:   result.FinalScores,
	})

	r.field.Clear()
	for _, id := range r.order {
		p := r.players[id]
		p.Score = 0
		p.X, p.Y = randomSpawn(r.rng)
	}
	r.status = StatusLobby

	r.logger.Info("round ended", "room_id", r.ID, "result", result.Message)
}

// closeLocked 銷毀房間（需持有 mu）
func (r *Room) closeLocked() {
	r.stopTimersLocked()
	r.closed = true
	r.status = StatusLobby
	r.players = make(map[string]*Player)
	r.order = nil
	r.field.Clear()
}

// stopTimersLocked 取消兩個計時器（需持有 mu）
//
// Stop 之後仍可能有一次已在等鎖的觸發，靠世代與狀態檢查作廢。
func (r *Room) stopTimersLocked() {
	r.clock.Stop()
	r.clock = nil
	r.scheduler.Stop()
	r.scheduler = nil
}

// snapshotLocked 依加入順序複製玩家名單（需持有 mu）
func (r *Room) snapshotLocked() []Player {
	out := make([]Player, 0, len(r.players))
	for _, id := range r.order {
		out = append(out, *r.players[id])
	}
	return out
}

// Players 玩家名單快照（依加入順序）
func (r *Room) Players() []Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Dots 點數快照
func (r *Room) Dots() []Dot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.field.Dots()
}

// Status 目前狀態
func (r *Room) Status() RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// HostID 房主 ID
func (r *Room) HostID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID
}

// PlayerCount 玩家數量
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// HasPlayer 玩家是否在房間內
func (r *Room) HasPlayer(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.players[playerID]
	return ok
}

// State 房間狀態（用於 HTTP API 序列化）
func (r *Room) State() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]any{
		"room_id":     r.ID,
		"status":      r.status,
		"host_id":     r.hostID,
		"players":     r.snapshotLocked(),
		"dot_count":   r.field.Count(),
		"max_players": r.cfg.MaxPlayers,
	}
}

// gameClock 單發回合倒數：武裝一次，最多觸發一次
type gameClock struct {
	timer *time.Timer
}

func newGameClock(duration time.Duration, fire func()) *gameClock {
	return &gameClock{timer: time.AfterFunc(duration, fire)}
}

// Stop 取消倒數。已經觸發或正在觸發的回呼由房間的世代檢查作廢。
func (c *gameClock) Stop() {
	if c != nil {
		c.timer.Stop()
	}
}

// specialDotScheduler 固定間隔的重複觸發器
type specialDotScheduler struct {
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

func newSpecialDotScheduler(interval time.Duration, fire func()) *specialDotScheduler {
	s := &specialDotScheduler{
		ticker: time.NewTicker(interval),
		stop:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-s.ticker.C:
				fire()
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

// Stop 停止排程並回收 goroutine，可安全重複呼叫
func (s *specialDotScheduler) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.stop)
	})
}
