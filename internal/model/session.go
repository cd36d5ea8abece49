package model

import "time"

type Session struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Title            string    `gorm:"size:256;not null" json:"title"`
	ActiveDocumentID *uint     `gorm:"index" json:"activeDocumentId"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
