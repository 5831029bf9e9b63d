package internal

// 事件驅動架構：
//
//	房間內的每個狀態變更都會產生一個具名事件，透過 Broadcaster 推送給
//	該房間的所有訂閱者。核心邏輯只依賴 Publish 介面，不關心訊息實際
//	走 WebSocket 還是 NATS。
//
// 順序保證：
//   - Publish 在持有房間鎖的情況下被呼叫，同一房間的事件順序
//     與產生它們的操作順序一致（FIFO）
//   - 不同房間之間沒有順序保證
//   - 發送是 fire-and-forget，不得阻塞房間邏輯

// 對外事件名稱
const (
	EventRoomCreated     = "roomCreated"
	EventRoomJoined      = "roomJoined"
	EventPlayersUpdated  = "playersUpdated"
	EventGameStarted     = "gameStarted"
	EventPlayerMoved     = "playerMoved"
	EventDotCollected    = "dotCollected"
	EventSpecialDotAdded = "specialDotAdded"
	EventScoresUpdated   = "scoresUpdated"
	EventGameEnded       = "gameEnded"
	EventRoomClosed      = "roomClosed"
	EventError           = "error"
)

// Broadcaster 將具名事件傳遞給房間的所有訂閱者
//
// 訂閱與退訂由傳輸層（WebSocket Hub）在玩家加入 / 離開時處理，
// 核心只負責發佈。
type Broadcaster interface {
	Publish(roomID, event string, payload any)
}

// JoinedPayload roomCreated / roomJoined 事件內容
type JoinedPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	IsHost   bool   `json:"isHost"`
}

// GameStartedPayload gameStarted 事件內容
type GameStartedPayload struct {
	Players  []Player `json:"players"`
	Dots     []Dot    `json:"dots"`
	GameTime int      `json:"gameTime"` // 回合長度（秒）
}

// MovedPayload playerMoved 事件內容
type MovedPayload struct {
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// DotCollectedPayload dotCollected 事件內容
type DotCollectedPayload struct {
	PlayerID string  `json:"playerId"`
	DotID    int     `json:"dotId"`
	NewDot   Dot     `json:"newDot"`
	Points   int     `json:"points"`
	DotType  DotType `json:"dotType"`
}

// GameEndedPayload gameEnded 事件內容
type GameEndedPayload struct {
	ResultMessage string   `json:"resultMessage"`
	FinalScores   []Player `json:"finalScores"`
}

// fanout 將同一事件發佈到多個 Broadcaster
type fanout []Broadcaster

// NewFanout 組合多個 Broadcaster（如 WebSocket Hub + NATS 轉發）
func NewFanout(broadcasters ...Broadcaster) Broadcaster {
	return fanout(broadcasters)
}

func (f fanout) Publish(roomID, event string, payload any) {
	for _, b := range f {
		b.Publish(roomID, event, payload)
	}
}
