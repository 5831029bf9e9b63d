package internal

import (
	"math"
	"math/rand"
)

// 競技場座標系：
//
//	原始場地為 800x600，所有邊界都從場地邊緣內縮，
//	確保玩家與點數不會貼著畫面邊緣生成或移動。
//
//	玩家移動範圍（半徑 15）：x ∈ [15, 785], y ∈ [15, 585]
//	玩家重生範圍（內縮 25）：x ∈ [25, 775], y ∈ [25, 575]
//	點數生成範圍（內縮 20）：x ∈ [20, 780], y ∈ [20, 580]
const (
	PlayerMinX = 15.0
	PlayerMaxX = 785.0
	PlayerMinY = 15.0
	PlayerMaxY = 585.0

	SpawnMinX = 25.0
	SpawnMaxX = 775.0
	SpawnMinY = 25.0
	SpawnMaxY = 575.0

	DotMinX = 20.0
	DotMaxX = 780.0
	DotMinY = 20.0
	DotMaxY = 580.0

	// CollectRadius 收集半徑：距離嚴格小於 20 才算收集
	CollectRadius = 20.0
)

// playerColors 玩家顏色調色盤（按加入順序循環分配）
var playerColors = []string{
	"#dda0dd",
	"#4ecdc4",
	"#45b7d1",
	"#96ceb4",
	"#ffeaa7",
	"#f2a2c7",
	"#98d8c8",
	"#f7dc6f",
}

// clampToArena 將座標限制在玩家移動範圍內
func clampToArena(x, y float64) (float64, float64) {
	return math.Max(PlayerMinX, math.Min(PlayerMaxX, x)),
		math.Max(PlayerMinY, math.Min(PlayerMaxY, y))
}

// randomSpawn 在重生範圍內取一個隨機位置
func randomSpawn(rng *rand.Rand) (float64, float64) {
	return SpawnMinX + rng.Float64()*(SpawnMaxX-SpawnMinX),
		SpawnMinY + rng.Float64()*(SpawnMaxY-SpawnMinY)
}

// randomDotPosition 在點數生成範圍內取一個隨機位置
func randomDotPosition(rng *rand.Rand) (float64, float64) {
	return DotMinX + rng.Float64()*(DotMaxX-DotMinX),
		DotMinY + rng.Float64()*(DotMaxY-DotMinY)
}
