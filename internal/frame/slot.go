package frame

import "sync"

// Slot はカメラ1台につき1つだけ存在する最新フレームのメールボックス
//
// 書き込みはカメラの取得ゴルーチン、読み出しは再描画スケジューラーが行う。
// 未消費のフレームは最大1枚で、新しいフレームが届くと上書きされる。
type Slot struct {
	mu        sync.Mutex
	frame     *Frame
	available bool

	published uint64 // 受け取ったフレーム数
	consumed  uint64 // 取り出されたフレーム数
	dropped   uint64 // 未消費のまま上書きされたフレーム数
}

// SlotStats はスロットの統計情報
type SlotStats struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Dropped   uint64 `json:"dropped"`
	Pending   bool   `json:"pending"`
}

// NewSlot は空のスロットを作成する
func NewSlot() *Slot {
	return &Slot{}
}

// Publish は新しいフレームを格納して利用可能にする
func (s *Slot) Publish(f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.available {
		s.dropped++
	}
	s.frame = f
	s.available = true
	s.published++
}

// TryConsume は利用可能なフレームがあれば取り出す。ブロックしない
func (s *Slot) TryConsume() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.available {
		return nil, false
	}
	s.available = false
	s.consumed++
	return s.frame, true
}

// Latest は消費状態を変えずに最後に格納されたフレームを返す
func (s *Slot) Latest() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Stats は統計情報を返す
func (s *Slot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotStats{
		Published: s.published,
		Consumed:  s.consumed,
		Dropped:   s.dropped,
		Pending:   s.available,
	}
}
