package bridge

import (
	"sync"
	"time"
)

const (
	// discardHorizon は作成からこの時間を超えたレコードを無条件に破棄する上限。
	discardHorizon = 5 * time.Minute
	// confirmationGrace は配信後に確認を待つ猶予時間。
	// 超過したレコードは未配信状態に戻し、次回ポーリングで再配信する。
	confirmationGrace = 2 * time.Minute
	// defaultCapacity はストアが保持するレコード数の上限。超過時は最古から破棄する。
	defaultCapacity = 100
)

// Store は未確認の通知レコードを保持するプロセス内ストア。
// 全操作を単一のミューテックスで保護する。複数のリクエストハンドラから
// 同時に呼び出されるため、ロックの外でrecordsに触れてはならない。
type Store struct {
	// mu は全操作を直列化するミューテックス。
	mu sync.Mutex
	// records は作成順に並んだ通知レコード。
	records []Record
	// capacity は保持するレコード数の上限。
	capacity int
}

// NewStore は容量上限付きの空のストアを生成する。
// capacityが0以下の場合は既定値を使用する。
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{capacity: capacity}
}

// Append はレコードを末尾に追加する。容量上限を超えた場合は最古のレコードを
// 破棄し、追加と破棄を同一ロック内で行う。
func (s *Store) Append(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if over := len(s.records) - s.capacity; over > 0 {
		s.records = append(s.records[:0], s.records[over:]...)
	}
}

// Snapshot は現在の全レコードのコピーを返す。状態は変更しない。
func (s *Store) Snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]Record, len(s.records))
	copy(snapshot, s.records)
	return snapshot
}

// Len は現在保持しているレコード数を返す。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// RemoveByIDs は指定されたIDのレコードを全て削除し、削除した件数を返す。
// 存在しないIDは無視する（冪等）。
func (s *Store) RemoveByIDs(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeByIDsLocked(ids)
}

// removeByIDsLocked はロック保持中にIDで削除する内部処理。
func (s *Store) removeByIDsLocked(ids []string) int {
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}

	kept := s.records[:0]
	removed := 0
	for _, rec := range s.records {
		if _, ok := idSet[rec.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed
}

// Sweep は古いレコードの掃除を行い、破棄した件数を返す。
//   - 作成からdiscardHorizonを超えたレコードは無条件に破棄する。
//   - 確認済み（Sent）のレコードは破棄する。
//   - 配信済みだが未確認のままconfirmationGraceを超えたレコードは
//     DeliveredAtをクリアし、再配信対象に戻す。
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

// sweepLocked はロック保持中に掃除を行う内部処理。
func (s *Store) sweepLocked(now time.Time) int {
	kept := s.records[:0]
	removed := 0
	for _, rec := range s.records {
		if rec.Sent || now.Sub(rec.Timestamp) > discardHorizon {
			removed++
			continue
		}
		if !rec.DeliveredAt.IsZero() && now.Sub(rec.DeliveredAt) > confirmationGrace {
			// 確認が届かないまま猶予時間を超えた。クライアント側の
			// 喪失とみなし、再配信できるよう未配信状態に戻す。
			rec.DeliveredAt = time.Time{}
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed
}

// TakeUndelivered は掃除・未配信レコードの選択・配信時刻の記録を
// 同一ロック内で行い、選択したレコードのコピーと残存レコード総数を返す。
// 配信済み（DeliveredAtが設定済み）のレコードは猶予時間内は再び返さない。
// 配信はSentを真にしない。確認APIの呼び出しのみがSentを真にする。
func (s *Store) TakeUndelivered(now time.Time) ([]Record, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(now)

	var delivered []Record
	for i := range s.records {
		if s.records[i].Sent || !s.records[i].DeliveredAt.IsZero() {
			continue
		}
		s.records[i].DeliveredAt = now
		delivered = append(delivered, s.records[i])
	}
	return delivered, len(s.records)
}

// ConfirmIDs は指定されたIDのレコードを確認済みにして削除する。
// 削除した件数と残存件数を返す。存在しないIDは無視する（冪等）。
// ネットワーク再送で同じ確認が重複しても状態は壊れない。
func (s *Store) ConfirmIDs(ids []string) (removed, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		for _, id := range ids {
			if s.records[i].ID == id {
				s.records[i].Sent = true
				break
			}
		}
	}
	removed = s.removeByIDsLocked(ids)
	return removed, len(s.records)
}

// ConfirmOldest は配信済みレコードのうち古い順にn件を確認済みにして削除する。
// 旧バージョンのクライアントが件数のみを送ってくる互換経路。
func (s *Store) ConfirmOldest(n int) (removed, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		if removed < n && !rec.DeliveredAt.IsZero() && !rec.Sent {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, len(s.records)
}

// ClearMode はClearの削除対象を表す。
type ClearMode string

const (
	// ClearAll は全レコードを削除する。
	ClearAll ClearMode = "all"
	// ClearSent は確認済みレコードのみ削除する。
	ClearSent ClearMode = "sent"
	// ClearOld は作成からdiscardHorizonを超えたレコードのみ削除する。
	ClearOld ClearMode = "old"
)

// Clear は運用・テスト用のリセット操作。指定モードに応じてレコードを削除し、
// 削除した件数と残存件数を返す。
func (s *Store) Clear(mode ClearMode, now time.Time) (removed, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		drop := false
		switch mode {
		case ClearAll:
			drop = true
		case ClearSent:
			drop = rec.Sent
		case ClearOld:
			drop = now.Sub(rec.Timestamp) > discardHorizon
		}
		if drop {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, len(s.records)
}

// Stats は運用監視用の集計値（総数・確認済み数・未確認数）を返す。
func (s *Store) Stats() (total, sent, unsent int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total = len(s.records)
	for _, rec := range s.records {
		if rec.Sent {
			sent++
		} else {
			unsent++
		}
	}
	return total, sent, unsent
}
