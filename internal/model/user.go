package model

import "time"

// User 表示系统用户。
//
// Active 为 false 表示邮箱尚未确认，确认前不能许愿。
// WishesCount / SentCardsCount 是冗余计数器，必须始终等于对应关联表的行数，
// 所有修改关联表的操作都会在同一事务内重新计算计数器。
type User struct {
	ID           uint   `gorm:"primaryKey"`                            // 用户 ID
	Username     string `gorm:"type:varchar(64);uniqueIndex;not null"` // 用户名（唯一，统一小写）
	Email        string `gorm:"type:varchar(191);uniqueIndex"`         // 邮箱（唯一，统一小写）
	Password     string `gorm:"not null"`                              // bcrypt 哈希
	Introduction string `gorm:"type:text"`                             // 自我介绍（已清理标记、换行转 <br>）
	IsAdmin      bool   `gorm:"default:false"`                         // 管理员标志
	Active       bool   `gorm:"default:false"`                         // 邮箱是否已确认

	ActivateToken  string     `gorm:"type:varchar(64);index"` // 邮箱确认令牌（一次性）
	ResetToken     string     `gorm:"type:varchar(64);index"` // 密码重置令牌（一次性）
	ResetExpiresAt *time.Time // 重置令牌过期时间（签发后 1 小时）

	WishesCount    int `gorm:"default:0"` // 愿望数量（冗余计数）
	SentCardsCount int `gorm:"default:0"` // 寄出记录数量（冗余计数）

	CreatedAt time.Time // 创建时间

	Wishes    []Card     `gorm:"many2many:wishes;joinForeignKey:UserID;joinReferences:CardID"` // 愿望清单中的卡片
	SentCards []SentCard `gorm:"foreignKey:UserID"`                                            // 寄出历史
}
