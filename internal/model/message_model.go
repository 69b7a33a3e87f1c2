package model

import "time"

type Message struct {
	Id                uint64    `gorm:"primaryKey;autoIncrement"`
	ConversationRowId uint64    `gorm:"not null;index"`
	Content           string    `gorm:"type:varchar(5000);not null"`
	Role              string    `gorm:"type:varchar(16);not null"`
	Context           *string   `gorm:"type:varchar(255)"`
	GeneratedAt       time.Time `gorm:"not null;index"`
}

func (Message) TableName() string {
	return "messages"
}
