package model

import "time"

type Conversation struct {
	Id             uint64     `gorm:"primaryKey;autoIncrement"`
	ConversationId string     `gorm:"type:varchar(512);not null;uniqueIndex"`
	Title          string     `gorm:"type:varchar(64)"`
	StartedAt      time.Time  `gorm:"not null"`
	Messages       []*Message `gorm:"foreignKey:ConversationRowId;constraint:OnDelete:CASCADE"`
}

func (Conversation) TableName() string {
	return "conversations"
}
