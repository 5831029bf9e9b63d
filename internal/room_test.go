package internal_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-arena-game/internal"
)

// recorder 記錄所有發佈事件的 Broadcaster，測試用
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	RoomID  string
	Event   string
	Payload any
}

func (r *recorder) Publish(roomID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{RoomID: roomID, Event: event, Payload: payload})
}

// named 依事件名過濾
func (r *recorder) named(event string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []recordedEvent
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// sequence 依序返回所有事件名
func (r *recorder) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Event
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRoom 創建測試房間，回傳房間、房主與事件記錄器
func newTestRoom(t *testing.T, cfg internal.RoomConfig) (*internal.Room, internal.Player, *recorder) {
	t.Helper()

	rec := &recorder{}
	room := internal.NewRoom("ROOM01", cfg, rec, testLogger())
	host, err := room.AddPlayer("Host")
	require.NoError(t, err)
	require.True(t, host.IsHost)
	return room, host, rec
}

// TestRoom_AddPlayer 測試加入玩家
func TestRoom_AddPlayer(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T) *internal.Room
		player   string
		wantErr  error
		validate func(t *testing.T, room *internal.Room, player internal.Player)
	}{
		{
			name: "first player becomes host",
			setup: func(t *testing.T) *internal.Room {
				return internal.NewRoom("ROOM01", internal.RoomConfig{}, &recorder{}, testLogger())
			},
			player: "Alice",
			validate: func(t *testing.T, room *internal.Room, player internal.Player) {
				assert.True(t, player.IsHost)
				assert.Equal(t, player.ID, room.HostID())
				assert.NotEmpty(t, player.ID)
				assert.NotEmpty(t, player.Color)
				assert.Equal(t, 0, player.Score)
			},
		},
		{
			name: "second player is not host",
			setup: func(t *testing.T) *internal.Room {
				room, _, _ := newTestRoom(t, internal.RoomConfig{})
				return room
			},
			player: "Bob",
			validate: func(t *testing.T, room *internal.Room, player internal.Player) {
				assert.False(t, player.IsHost)
				assert.Equal(t, 2, room.PlayerCount())
			},
		},
		{
			name: "room full",
			setup: func(t *testing.T) *internal.Room {
				room, _, _ := newTestRoom(t, internal.RoomConfig{MaxPlayers: 2})
				_, err := room.AddPlayer("Bob")
				require.NoError(t, err)
				return room
			},
			player:  "Carol",
			wantErr: internal.ErrRoomFull,
		},
		{
			name: "join during active round",
			setup: func(t *testing.T) *internal.Room {
				room, host, _ := newTestRoom(t, internal.RoomConfig{})
				require.NoError(t, room.Start(host.ID))
				return room
			},
			player:  "Bob",
			wantErr: internal.ErrGameInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := tt.setup(t)
			player, err := room.AddPlayer(tt.player)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.validate(t, room, player)
		})
	}
}

// TestRoom_ColorAssignment 測試顏色按加入順序分配
func TestRoom_ColorAssignment(t *testing.T) {
	room, host, _ := newTestRoom(t, internal.RoomConfig{})
	bob, err := room.AddPlayer("Bob")
	require.NoError(t, err)

	assert.NotEqual(t, host.Color, bob.Color)
}

// TestRoom_Start 測試開始回合
func TestRoom_Start(t *testing.T) {
	room, host, rec := newTestRoom(t, internal.RoomConfig{
		RoundDuration: time.Hour,
		InitialDots:   20,
	})
	_, err := room.AddPlayer("Bob")
	require.NoError(t, err)

	// 非房主不能開始
	outsider, err := room.AddPlayer("Carol")
	require.NoError(t, err)
	assert.ErrorIs(t, room.Start(outsider.ID), internal.ErrNotHost)
	assert.Equal(t, internal.StatusLobby, room.Status())

	// 房主開始
	require.NoError(t, room.Start(host.ID))
	assert.Equal(t, internal.StatusActive, room.Status())
	assert.Len(t, room.Dots(), 20)

	started := rec.named(internal.EventGameStarted)
	require.Len(t, started, 1)
	payload := started[0].Payload.(internal.GameStartedPayload)
	assert.Len(t, payload.Players, 3)
	assert.Len(t, payload.Dots, 20)
	assert.Equal(t, 3600, payload.GameTime)
	for _, p := range payload.Players {
		assert.Equal(t, 0, p.Score)
	}

	// 進行中不能重複開始
	assert.ErrorIs(t, room.Start(host.ID), internal.ErrAlreadyActive)
}

// TestRoom_Move 測試移動與收集
func TestRoom_Move(t *testing.T) {
	room, host, rec := newTestRoom(t, internal.RoomConfig{
		RoundDuration:   time.Hour,
		SpecialInterval: time.Hour,
	})

	// 回合未開始的移動靜默忽略
	room.Move(host.ID, 400, 300)
	assert.Empty(t, rec.named(internal.EventPlayerMoved))

	require.NoError(t, room.Start(host.ID))
	rec.reset()

	// 越界座標夾取到邊界
	room.Move(host.ID, -100, 99999)
	moved := rec.named(internal.EventPlayerMoved)
	require.Len(t, moved, 1)
	movedPayload := moved[0].Payload.(internal.MovedPayload)
	assert.Equal(t, 15.0, movedPayload.X)
	assert.Equal(t, 585.0, movedPayload.Y)

	// 未知玩家的移動靜默忽略
	rec.reset()
	room.Move("no-such-player", 400, 300)
	assert.Empty(t, rec.sequence())

	// 走到最老的點上收集
	rec.reset()
	target := room.Dots()[0]
	room.Move(host.ID, target.X, target.Y)

	collectedEvents := rec.named(internal.EventDotCollected)
	require.Len(t, collectedEvents, 1)
	collected := collectedEvents[0].Payload.(internal.DotCollectedPayload)
	assert.Equal(t, host.ID, collected.PlayerID)
	assert.Equal(t, target.ID, collected.DotID)
	assert.Equal(t, internal.DotNormal, collected.NewDot.Type)
	assert.Equal(t, 1, collected.Points)

	// 事件順序：dotCollected → playerMoved → scoresUpdated
	assert.Equal(t, []string{
		internal.EventDotCollected,
		internal.EventPlayerMoved,
		internal.EventScoresUpdated,
	}, rec.sequence())

	// 點數總量不變，分數累加
	assert.Len(t, room.Dots(), 20)
	scores := rec.named(internal.EventScoresUpdated)
	players := scores[0].Payload.([]internal.Player)
	require.Len(t, players, 1)
	assert.Equal(t, 1, players[0].Score)
}

// TestRoom_End 測試提前結束
func TestRoom_End(t *testing.T) {
	room, host, rec := newTestRoom(t, internal.RoomConfig{
		RoundDuration:   time.Hour,
		SpecialInterval: time.Hour,
	})
	bob, err := room.AddPlayer("Bob")
	require.NoError(t, err)

	// 未開始的 End 靜默成功
	require.NoError(t, room.End(host.ID))
	assert.Empty(t, rec.named(internal.EventGameEnded))

	require.NoError(t, room.Start(host.ID))

	// 非房主不能結束
	assert.ErrorIs(t, room.End(bob.ID), internal.ErrNotHost)
	assert.Equal(t, internal.StatusActive, room.Status())

	// 房主收一顆點再結束
	target := room.Dots()[0]
	room.Move(host.ID, target.X, target.Y)
	require.NoError(t, room.End(host.ID))

	ended := rec.named(internal.EventGameEnded)
	require.Len(t, ended, 1)
	payload := ended[0].Payload.(internal.GameEndedPayload)
	assert.Equal(t, "🎉 Host wins with 1 points! Bob loses.", payload.ResultMessage)
	require.Len(t, payload.FinalScores, 2)
	assert.Equal(t, "Host", payload.FinalScores[0].Name)
	assert.Equal(t, 1, payload.FinalScores[0].Score)

	// 結算後回到 lobby：保留玩家、清空點數、分數歸零
	assert.Equal(t, internal.StatusLobby, room.Status())
	assert.Equal(t, 2, room.PlayerCount())
	assert.Empty(t, room.Dots())
	for _, p := range room.Players() {
		assert.Equal(t, 0, p.Score)
	}

	// 同一房間可以再開下一回合
	require.NoError(t, room.Start(host.ID))
	assert.Equal(t, internal.StatusActive, room.Status())
}

// TestRoom_RemovePlayer 測試玩家離開
func TestRoom_RemovePlayer(t *testing.T) {
	room, host, rec := newTestRoom(t, internal.RoomConfig{})
	bob, err := room.AddPlayer("Bob")
	require.NoError(t, err)

	// 一般玩家離開：人數減少，廣播名單
	rec.reset()
	hostLeft := room.RemovePlayer(bob.ID)
	assert.False(t, hostLeft)
	assert.Equal(t, 1, room.PlayerCount())
	require.Len(t, rec.named(internal.EventPlayersUpdated), 1)

	// 未知玩家離開是 no-op
	assert.False(t, room.RemovePlayer("ghost"))

	// 房主離開：房間銷毀
	rec.reset()
	hostLeft = room.RemovePlayer(host.ID)
	assert.True(t, hostLeft)
	require.Len(t, rec.named(internal.EventRoomClosed), 1)

	// 銷毀後不能再加入
	_, err = room.AddPlayer("Carol")
	assert.ErrorIs(t, err, internal.ErrRoomNotFound)
}

// TestRoom_HostLeaveDuringRound 測試回合中房主離開
func TestRoom_HostLeaveDuringRound(t *testing.T) {
	room, host, rec := newTestRoom(t, internal.RoomConfig{
		RoundDuration:   50 * time.Millisecond,
		SpecialInterval: 20 * time.Millisecond,
	})
	require.NoError(t, room.Start(host.ID))

	assert.True(t, room.RemovePlayer(host.ID))

	// 銷毀後遺留的計時器不再產生任何事件
	rec.reset()
	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, rec.named(internal.EventGameEnded))
	assert.Empty(t, rec.named(internal.EventSpecialDotAdded))
}

// TestRoom_RoundTimerExpiry 測試倒數到期自動結算
func TestRoom_RoundTimerExpiry(t *testing.T) {
	room, host, rec := newTestRoom(t, internal.RoomConfig{
		RoundDuration:   80 * time.Millisecond,
		SpecialInterval: 25 * time.Millisecond,
	})
	require.NoError(t, room.Start(host.ID))

	time.Sleep(150 * time.Millisecond)

	// 到期自動結算一次，期間生成了特殊點
	require.Len(t, rec.named(internal.EventGameEnded), 1)
	assert.NotEmpty(t, rec.named(internal.EventSpecialDotAdded))
	assert.Equal(t, internal.StatusLobby, room.Status())

	specials := len(rec.named(internal.EventSpecialDotAdded))

	// 回到 lobby 後一切計時器靜止
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.named(internal.EventGameEnded), 1)
	assert.Len(t, rec.named(internal.EventSpecialDotAdded), specials)
}

// TestRoom_EarlyEndCancelsTimers 測試提前結束使遺留計時器作廢
func TestRoom_EarlyEndCancelsTimers(t *testing.T) {
	room, host, rec := newTestRoom(t, internal.RoomConfig{
		RoundDuration:   60 * time.Millisecond,
		SpecialInterval: time.Hour,
	})
	require.NoError(t, room.Start(host.ID))
	require.NoError(t, room.End(host.ID))

	time.Sleep(120 * time.Millisecond)

	// 只有提前結束那一次結算，到期觸發已作廢
	assert.Len(t, rec.named(internal.EventGameEnded), 1)
}

// TestRoom_SpecialDotScoring 測試特殊點計分
func TestRoom_SpecialDotScoring(t *testing.T) {
	room, host, rec := newTestRoom(t, internal.RoomConfig{
		RoundDuration:   time.Hour,
		SpecialInterval: 20 * time.Millisecond,
	})
	require.NoError(t, room.Start(host.ID))

	require.Eventually(t, func() bool {
		return len(rec.named(internal.EventSpecialDotAdded)) > 0
	}, time.Second, 5*time.Millisecond)

	special := rec.named(internal.EventSpecialDotAdded)[0].Payload.(internal.Dot)
	assert.Equal(t, internal.DotSpecial, special.Type)

	rec.reset()
	room.Move(host.ID, special.X, special.Y)

	collected := rec.named(internal.EventDotCollected)
	require.Len(t, collected, 1)
	payload := collected[0].Payload.(internal.DotCollectedPayload)

	// 走過去的路上可能先碰到一般點，只驗證實際收到的那顆
	if payload.DotID == special.ID {
		assert.Equal(t, 10, payload.Points)
		assert.Equal(t, internal.DotSpecial, payload.DotType)
	}
}

// TestRoom_ConcurrentCollectionExclusive 測試同一顆點最多被收集一次
func TestRoom_ConcurrentCollectionExclusive(t *testing.T) {
	for round := 0; round < 20; round++ {
		room, host, rec := newTestRoom(t, internal.RoomConfig{
			RoundDuration:   time.Hour,
			SpecialInterval: time.Hour,
		})
		bob, err := room.AddPlayer("Bob")
		require.NoError(t, err)
		require.NoError(t, room.Start(host.ID))

		target := room.Dots()[0]

		var wg sync.WaitGroup
		for _, id := range []string{host.ID, bob.ID} {
			wg.Add(1)
			go func(playerID string) {
				defer wg.Done()
				room.Move(playerID, target.X, target.Y)
			}(id)
		}
		wg.Wait()

		// 兩人同時踩上同一顆點，那顆點只能產生一次收集事件
		hits := 0
		for _, e := range rec.named(internal.EventDotCollected) {
			if e.Payload.(internal.DotCollectedPayload).DotID == target.ID {
				hits++
			}
		}
		assert.Equal(t, 1, hits)
		assert.Len(t, room.Dots(), 20)
	}
}

// TestRoom_StateSnapshot 測試狀態快照
func TestRoom_StateSnapshot(t *testing.T) {
	room, host, _ := newTestRoom(t, internal.RoomConfig{MaxPlayers: 4})

	state := room.State()
	assert.Equal(t, "ROOM01", state["room_id"])
	assert.Equal(t, internal.StatusLobby, state["status"])
	assert.Equal(t, host.ID, state["host_id"])
	assert.Equal(t, 4, state["max_players"])
	assert.Len(t, state["players"].([]internal.Player), 1)
}
