package internal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// 系統設計問題：
//   觀戰服務、排行榜、回放錄製這些下游系統如何拿到遊戲事件，
//   又不讓遊戲伺服器知道它們的存在？
//
// 核心挑戰：
//   1. 解耦：遊戲循環不能等待任何下游消費者
//   2. 主題設計：下游要能只訂閱感興趣的房間或事件
//
// 設計方案：
//   ✅ NATS 發布訂閱 - fire-and-forget，發布不阻塞
//   ✅ 階層式主題 - arena.room.<roomID>.<event>，支援萬用字元訂閱

// NATSRelay 把房間事件轉發到 NATS
//
// 實作 Broadcaster，與 WebSocket Hub 組成 fanout：
// 玩家走 WebSocket，下游系統走 NATS，兩邊收到同一串事件。
type NATSRelay struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSRelay 連接 NATS 並創建事件轉發器
func NewNATSRelay(url string, logger *slog.Logger) (*NATSRelay, error) {
	conn, err := nats.Connect(
		url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}

	logger.Info("nats relay connected", "url", url)
	return &NATSRelay{conn: conn, logger: logger}, nil
}

// Publish 實作 Broadcaster
//
// 主題格式 arena.room.<roomID>.<event>，
// 訂閱 arena.room.ABC123.> 可以收到單一房間的完整事件流。
func (r *NATSRelay) Publish(roomID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("marshal relay payload failed", "event", event, "error", err)
		return
	}

	subject := fmt.Sprintf("arena.room.%s.%s", roomID, event)
	if err := r.conn.Publish(subject, data); err != nil {
		r.logger.Warn("nats publish failed", "subject", subject, "error", err)
	}
}

// Close 排空並關閉連接
func (r *NATSRelay) Close() {
	if err := r.conn.Drain(); err != nil {
		r.logger.Warn("nats drain failed", "error", err)
	}
	r.conn.Close()
}
