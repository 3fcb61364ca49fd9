package model

import "time"

// TicketRecord 票据持久化记录（数据库注册表的存储单元）
// 每张票据一行：ID、序列化体（可能已加密）、物理过期时间
type TicketRecord struct {
	ID        string     `gorm:"type:varchar(512);primaryKey" json:"id"`
	Kind      string     `gorm:"type:varchar(8);index" json:"kind"`
	Body      []byte     `gorm:"type:blob" json:"body"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TableName 指定表名
func (TicketRecord) TableName() string {
	return "tickets"
}
