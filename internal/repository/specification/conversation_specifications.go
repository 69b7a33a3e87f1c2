package specification

import "gorm.io/gorm"

type ByConversationID struct {
	ConversationID string
}

func (s ByConversationID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("conversation_id = ?", s.ConversationID)
}

type ByConversationRowID struct {
	RowID uint64
}

func (s ByConversationRowID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("conversation_row_id = ?", s.RowID)
}

// WithMessages eager-loads messages in chronological order.
type WithMessages struct{}

func (s WithMessages) Apply(db *gorm.DB) *gorm.DB {
	return db.Preload("Messages", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("generated_at ASC, id ASC")
	})
}
