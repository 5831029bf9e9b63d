package internal

import (
	"fmt"
	"sort"
	"strings"
)

// RoundResult 回合結算結果
type RoundResult struct {
	Message     string   // 給玩家看的結果訊息
	FinalScores []Player // 依分數由高到低排序的最終快照（同分維持原順序）
}

// ResolveRound 計算回合結果
//
// 輸入必須是重置前的玩家快照：結算訊息基於最終分數，
// 而房間在廣播結果的同時就會把分數歸零。
//
// 勝者判定：分數等於最高分的所有玩家。來源行為如此，
// 同分時不做進一步的決勝，只把並列者全部列出。
func ResolveRound(players []Player) RoundResult {
	if len(players) == 0 {
		return RoundResult{}
	}

	maxScore := players[0].Score
	for _, p := range players[1:] {
		if p.Score > maxScore {
			maxScore = p.Score
		}
	}

	var winners, losers []Player
	for _, p := range players {
		if p.Score == maxScore {
			winners = append(winners, p)
		} else {
			losers = append(losers, p)
		}
	}

	var message string
	switch {
	case len(winners) == 1 && len(losers) > 0:
		verb := "loses"
		if len(losers) > 1 {
			verb = "lose"
		}
		message = fmt.Sprintf("🎉 %s wins with %d points! %s %s.",
			winners[0].Name, winners[0].Score, joinNames(losers), verb)
	case len(winners) == 1:
		message = fmt.Sprintf("🎉 %s wins with %d points!", winners[0].Name, winners[0].Score)
	default:
		message = fmt.Sprintf("🎉 It's a tie between %s with %d points each!",
			joinNames(winners), maxScore)
	}

	final := make([]Player, len(players))
	copy(final, players)
	sort.SliceStable(final, func(i, j int) bool {
		return final[i].Score > final[j].Score
	})

	return RoundResult{Message: message, FinalScores: final}
}

func joinNames(players []Player) string {
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}
