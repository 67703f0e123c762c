package model

import (
	"time"
)

// Card 表示图鉴中的一张卡片。
//
// Amount 是库存数量，寄出时通过带条件的原子减一保证不会降到负数。
// 删除卡片时必须级联清理其评论以及所有用户愿望单 / 寄出历史中的引用
// （由调用方负责，存储层没有外键级联）。
type Card struct {
	ID        uint      `gorm:"primaryKey"` // 卡片唯一标识
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	Name        string `gorm:"type:varchar(191);not null"` // 卡片名称
	Description string `gorm:"type:text"`                  // 描述（已清理标记、换行转 <br>）

	ImageURL       string `gorm:"type:varchar(512)"` // 图片公开链接
	ImageStorageID string `gorm:"type:varchar(191)"` // 对象存储中的 key，用于替换 / 删除

	Amount int `gorm:"not null;default:0"` // 库存数量（>= 0）

	Comments []Comment `gorm:"foreignKey:CardID"` // 关联的评论列表
}

// Wish 是用户与卡片的愿望关联（多对多中间表）。
//
// 复合主键保证同一用户对同一卡片最多只有一条愿望记录。
type Wish struct {
	UserID uint `gorm:"primaryKey"` // 用户 ID
	CardID uint `gorm:"primaryKey"` // 卡片 ID

	CreatedAt time.Time // 许愿时间（用于愿望单排序）
}

// SentCard 表示一条寄出记录。
//
// SentCardName 是寄出时卡片名称的快照，卡片被删除后记录仍可读。
type SentCard struct {
	ID     uint `gorm:"primaryKey"` // 记录 ID
	UserID uint `gorm:"index;not null"`
	CardID uint `gorm:"index"` // 对应卡片（卡片删除时记录一并清理）

	SentCardName string    `gorm:"type:varchar(191)"` // 寄出时的卡片名称快照
	SentDate     time.Time // 寄出时间
}

// Comment 表示卡片下的一条评论。
//
// AuthorUsername 是发表时用户名的快照。
type Comment struct {
	ID        uint      `gorm:"primaryKey"` // 评论 ID
	CreatedAt time.Time // 发表时间
	UpdatedAt time.Time // 更新时间

	CardID uint   `gorm:"index;not null"` // 所属卡片
	Text   string `gorm:"type:text"`      // 评论内容（已清理标记）

	AuthorID       uint   `gorm:"index"`             // 作者用户 ID
	AuthorUsername string `gorm:"type:varchar(64)"`  // 作者用户名快照
}
