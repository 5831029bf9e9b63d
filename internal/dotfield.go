package internal

import (
	"math"
	"math/rand"
)

// DotType 點數種類
type DotType string

const (
	DotNormal  DotType = "normal"  // 一般點數：1 分，收集後立即補充
	DotSpecial DotType = "special" // 特殊點數：10 分，只增不補
)

// 點值
const (
	NormalDotPoints  = 1
	SpecialDotPoints = 10
)

// Dot 可收集的點數
type Dot struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Type   DotType `json:"type"`
	Points int     `json:"points"`
}

// DotField 管理單一房間內的點數集合
//
// 系統設計考量：
//
//  1. 有序序列（slice）而非 map：
//     多個點同時在收集範圍內時，固定收集「存活最久」的那一個，
//     行為可重現。map 的迭代順序隨機，無法提供這種決定性。
//
//  2. 原子性的收集與補充：
//     CheckCollision 在移除被收集點的同一次呼叫內補上新點，
//     一般點數量在整個回合中恆定（收集瞬間除外）。
//
//  3. ID 分配：
//     單調遞增計數器，保證任一時刻房間內的點 ID 不重複。
//     DotField 本身不做並發控制，由擁有它的房間鎖保護。
type DotField struct {
	dots   []Dot
	nextID int
	rng    *rand.Rand
}

// NewDotField 創建點數場
func NewDotField(rng *rand.Rand) *DotField {
	return &DotField{rng: rng}
}

// SpawnInitial 生成回合開始時的一般點數，取代所有現存點數
func (f *DotField) SpawnInitial(count int) []Dot {
	f.dots = make([]Dot, 0, count)
	for i := 0; i < count; i++ {
		f.dots = append(f.dots, f.newDot(DotNormal))
	}
	return f.Dots()
}

// SpawnSpecial 追加一顆特殊點數
func (f *DotField) SpawnSpecial() Dot {
	dot := f.newDot(DotSpecial)
	f.dots = append(f.dots, dot)
	return dot
}

// CheckCollision 檢查玩家是否收集到點數
//
// 掃描順序為存活最久優先；第一顆距離嚴格小於收集半徑的點被收集。
// 每次呼叫最多收集一顆——即使範圍內有多顆，其餘留給之後的移動，
// 限制單次移動的得分上限並維持點數密度穩定。
//
// 收集成功時：移除該點、累加玩家分數、補充一顆一般點數（永遠不補特殊點）。
func (f *DotField) CheckCollision(p *Player) (collected Dot, replacement Dot, ok bool) {
	for i, dot := range f.dots {
		if math.Hypot(p.X-dot.X, p.Y-dot.Y) >= CollectRadius {
			continue
		}

		f.dots = append(f.dots[:i], f.dots[i+1:]...)
		p.Score += dot.Points

		replacement = f.newDot(DotNormal)
		f.dots = append(f.dots, replacement)

		return dot, replacement, true
	}
	return Dot{}, Dot{}, false
}

// Dots 返回點數快照
func (f *DotField) Dots() []Dot {
	out := make([]Dot, len(f.dots))
	copy(out, f.dots)
	return out
}

// Count 目前點數總量
func (f *DotField) Count() int {
	return len(f.dots)
}

// NormalCount 目前一般點數數量
func (f *DotField) NormalCount() int {
	n := 0
	for _, dot := range f.dots {
		if dot.Type == DotNormal {
			n++
		}
	}
	return n
}

// Clear 移除所有點數（回合結束）
func (f *DotField) Clear() {
	f.dots = nil
}

// newDot 在生成範圍內隨機產生一顆點數
func (f *DotField) newDot(kind DotType) Dot {
	x, y := randomDotPosition(f.rng)
	points := NormalDotPoints
	if kind == DotSpecial {
		points = SpecialDotPoints
	}
	dot := Dot{
		ID:     f.nextID,
		X:      x,
		Y:      y,
		Type:   kind,
		Points: points,
	}
	f.nextID++
	return dot
}
