// Package internal 實現了一個權威式的多人圓點收集遊戲服務器。
//
// 玩家在 800x600 的競技場中移動圓形角色收集圓點得分，
// 服務器是唯一的事實來源：碰撞判定、計分、回合計時全部在服務端完成，
// 客戶端只發送移動意圖並渲染服務器廣播的狀態。
//
// 核心組成：
//
// 房間生命週期
//
// 每個房間是一個獨立的狀態機（lobby → active → ended → lobby）：
//   - 房主創建房間並取得 6 位房間碼
//   - 其他玩家憑房間碼加入（上限 8 人，遊戲中不可加入）
//   - 只有房主能開始與提前結束回合
//   - 房主離開即銷毀整個房間
//
// 碰撞與計分
//
// 每次移動先夾取到競技場邊界，再對圓點做嚴格小於 20 單位的
// 距離判定；一次移動最多收集一枚圓點，收集與補充新圓點是
// 同一個臨界區內的原子操作，圓點總數恆定。
//
// 計時器
//
// 回合倒數（預設 60 秒）與特殊圓點生成（每 10 秒，+10 分）
// 都以回合世代編號做防護，提前結束後遺留的計時器觸發會被丟棄。
//
// 併發模型
//
// 每個房間一把互斥鎖，指令與計時器回調全部串行化；
// 事件在持鎖期間依序發布，任何觀察者看到的事件順序
// 都與房間內的狀態變化順序一致。
//
// 通訊
//
// 玩家透過 WebSocket 收發指令與事件，下游系統（觀戰、排行榜）
// 可選擇性地經由 NATS 訂閱 arena.room.<roomID>.<event> 主題。
// HTTP API 提供唯讀的房間列表、詳情與統計。
package internal
