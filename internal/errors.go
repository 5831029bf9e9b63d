package internal

import "errors"

// 錯誤分類：
//   - 驗證錯誤（名稱、房間 ID 為空）
//   - 資源錯誤（房間不存在、房間已滿）
//   - 狀態錯誤（遊戲進行中加入、重複開始）
//   - 權限錯誤（非房主執行房主操作）
//
// 所有錯誤都只回報給發起操作的玩家，不影響其他房間或整個服務。
// 遲到的移動訊息（回合結束後才抵達的 playerMove）不算錯誤，靜默忽略。
var (
	ErrEmptyName      = errors.New("player name required")
	ErrEmptyRoomID    = errors.New("room id required")
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrGameInProgress = errors.New("game already in progress")
	ErrAlreadyActive  = errors.New("game already started")
	ErrNotHost        = errors.New("not host")
	ErrPlayerNotFound = errors.New("player not in room")
)

// ErrorMessage 將內部錯誤轉換為給玩家看的訊息
//
// 與客戶端的契約：每個被回報的錯誤都是一條人類可讀的 error 事件。
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyName):
		return "Player name is required!"
	case errors.Is(err, ErrEmptyRoomID):
		return "Room ID is required!"
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found!"
	case errors.Is(err, ErrRoomFull):
		return "Room is full!"
	case errors.Is(err, ErrGameInProgress):
		return "Game already in progress!"
	case errors.Is(err, ErrAlreadyActive):
		return "Game already started!"
	case errors.Is(err, ErrNotHost):
		return "Only the host can do that!"
	case errors.Is(err, ErrPlayerNotFound):
		return "You are not in this room!"
	default:
		return "Something went wrong!"
	}
}
