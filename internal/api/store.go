package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Kai-Ger/CardGallery/internal/model"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// 领域错误，handler 层据此映射 HTTP 状态码。
var (
	ErrCardNotFound       = errors.New("card not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrWishNotFound       = errors.New("wish not found")
	ErrSentRecordNotFound = errors.New("sent record not found")
	ErrDuplicateWish      = errors.New("card already wished")
	ErrOutOfStock         = errors.New("card out of stock")
)

// CardPage 卡片列表的一页。
type CardPage struct {
	Cards   []model.Card // 当前页的卡片
	Current int          // 当前页码（从 1 开始）
	Pages   int          // 总页数
	NoMatch bool         // 搜索无结果
}

// CardStore 卡片目录的读取与级联删除。
type CardStore interface {
	// ListCards 返回分页列表。search 非空时按名称做大小写不敏感的子串匹配。
	ListCards(ctx context.Context, page, pageSize int, search string) (*CardPage, error)
	// GetCard 返回卡片及其评论。
	GetCard(ctx context.Context, id uint) (*model.Card, error)
	// DeleteCardCascade 删除卡片并清理评论和所有用户的愿望 / 寄出引用。
	DeleteCardCascade(ctx context.Context, id uint) error
}

// WishStore 愿望与寄出流程的状态变更，全部操作保证事务内完成。
type WishStore interface {
	// AddWish 把卡片加入用户愿望单，返回卡片（用于通知邮件）。
	// 同一 (用户, 卡片) 重复许愿返回 ErrDuplicateWish。
	AddWish(ctx context.Context, userID, cardID uint) (*model.Card, error)
	// RemoveWish 把卡片从愿望单移除。记录不存在返回 ErrWishNotFound，
	// 此时计数器不变。
	RemoveWish(ctx context.Context, userID, cardID uint) error
	// FulfillWish 寄出一张被许愿的卡片：库存原子减一（不足返回
	// ErrOutOfStock 且不产生任何副作用）、移除愿望、追加寄出记录。
	FulfillWish(ctx context.Context, userID, cardID uint) (*model.SentCard, error)
	// RemoveSentRecord 删除寄出记录。库存不回补。
	RemoveSentRecord(ctx context.Context, userID, sentID uint) error
}

// UserStore 用户数据的读取与维护。
type UserStore interface {
	// GetUser 按 ID 加载用户（不带关联）。
	GetUser(ctx context.Context, id uint) (*model.User, error)
	// GetUserProfile 加载用户及其愿望单与寄出历史。
	GetUserProfile(ctx context.Context, id uint) (*model.User, error)
	// ListUsers 返回所有用户。
	ListUsers(ctx context.Context) ([]model.User, error)
}

type dbCardStore struct {
	db *gorm.DB
}

func (s dbCardStore) ListCards(ctx context.Context, page, pageSize int, search string) (*CardPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 4
	}

	filter := func(q *gorm.DB) *gorm.DB {
		if search != "" {
			pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
			q = q.Where("LOWER(name) LIKE ?", pattern)
		}
		return q
	}

	var total int64
	if err := filter(s.db.WithContext(ctx).Model(&model.Card{})).Count(&total).Error; err != nil {
		return nil, err
	}

	var cards []model.Card
	if err := filter(s.db.WithContext(ctx).Model(&model.Card{})).
		Order("id ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&cards).Error; err != nil {
		return nil, err
	}

	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &CardPage{
		Cards:   cards,
		Current: page,
		Pages:   pages,
		NoMatch: search != "" && total == 0,
	}, nil
}

func (s dbCardStore) GetCard(ctx context.Context, id uint) (*model.Card, error) {
	var card model.Card
	err := s.db.WithContext(ctx).Preload("Comments").First(&card, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// DeleteCardCascade 级联删除。顺序：评论 → 愿望引用 → 寄出引用 → 受影响
// 用户的计数器 → 卡片本体，全部在一个事务里。
func (s dbCardStore) DeleteCardCascade(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card model.Card
		if err := tx.First(&card, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCardNotFound
			}
			return err
		}

		// 先收集受影响的用户，引用删掉之后就查不到了
		var wishUserIDs []uint
		if err := tx.Model(&model.Wish{}).Where("card_id = ?", id).Pluck("user_id", &wishUserIDs).Error; err != nil {
			return err
		}
		var sentUserIDs []uint
		if err := tx.Model(&model.SentCard{}).Where("card_id = ?", id).Pluck("user_id", &sentUserIDs).Error; err != nil {
			return err
		}

		if err := tx.Where("card_id = ?", id).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("card_id = ?", id).Delete(&model.Wish{}).Error; err != nil {
			return err
		}
		if err := tx.Where("card_id = ?", id).Delete(&model.SentCard{}).Error; err != nil {
			return err
		}

		for _, userID := range wishUserIDs {
			if err := syncWishCount(tx, userID); err != nil {
				return err
			}
		}
		for _, userID := range sentUserIDs {
			if err := syncSentCount(tx, userID); err != nil {
				return err
			}
		}

		return tx.Delete(&model.Card{}, id).Error
	})
}

type dbWishStore struct {
	db *gorm.DB
}

func (s dbWishStore) AddWish(ctx context.Context, userID, cardID uint) (*model.Card, error) {
	var card model.Card
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&card, cardID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCardNotFound
			}
			return err
		}

		wish := model.Wish{UserID: userID, CardID: cardID}
		if err := tx.Create(&wish).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrDuplicateWish
			}
			return err
		}

		return syncWishCount(tx, userID)
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (s dbWishStore) RemoveWish(ctx context.Context, userID, cardID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND card_id = ?", userID, cardID).Delete(&model.Wish{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrWishNotFound
		}
		return syncWishCount(tx, userID)
	})
}

// FulfillWish 寄出流程。库存检查和减一是同一条带条件的 UPDATE，
// 两个管理员同时寄最后一张时只有一个能成功。
func (s dbWishStore) FulfillWish(ctx context.Context, userID, cardID uint) (*model.SentCard, error) {
	var sent model.SentCard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		res := tx.Model(&model.Card{}).
			Where("id = ? AND amount >= 1", cardID).
			UpdateColumn("amount", gorm.Expr("amount - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var card model.Card
			if err := tx.Select("id").First(&card, cardID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrCardNotFound
				}
				return err
			}
			return ErrOutOfStock
		}

		var card model.Card
		if err := tx.First(&card, cardID).Error; err != nil {
			return err
		}

		if err := tx.Where("user_id = ? AND card_id = ?", userID, cardID).Delete(&model.Wish{}).Error; err != nil {
			return err
		}

		sent = model.SentCard{
			UserID:       userID,
			CardID:       cardID,
			SentCardName: card.Name,
			SentDate:     time.Now(),
		}
		if err := tx.Create(&sent).Error; err != nil {
			return err
		}

		if err := syncWishCount(tx, userID); err != nil {
			return err
		}
		return syncSentCount(tx, userID)
	})
	if err != nil {
		return nil, err
	}
	return &sent, nil
}

func (s dbWishStore) RemoveSentRecord(ctx context.Context, userID, sentID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", sentID, userID).Delete(&model.SentCard{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSentRecordNotFound
		}
		return syncSentCount(tx, userID)
	})
}

type dbUserStore struct {
	db *gorm.DB
}

func (s dbUserStore) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) GetUserProfile(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).
		Preload("Wishes").
		Preload("SentCards", func(q *gorm.DB) *gorm.DB {
			return q.Order("sent_date DESC")
		}).
		First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// syncWishCount 在事务内把冗余计数器重算成关联表的真实行数。
func syncWishCount(tx *gorm.DB, userID uint) error {
	return tx.Model(&model.User{}).Where("id = ?", userID).
		UpdateColumn("wishes_count", gorm.Expr("(SELECT COUNT(*) FROM wishes WHERE user_id = ?)", userID)).Error
}

func syncSentCount(tx *gorm.DB, userID uint) error {
	return tx.Model(&model.User{}).Where("id = ?", userID).
		UpdateColumn("sent_cards_count", gorm.Expr("(SELECT COUNT(*) FROM sent_cards WHERE user_id = ?)", userID)).Error
}

// escapeLike 转义 LIKE 模式里的通配符，用户输入只做字面匹配。
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

func isDuplicateKey(err error) bool {
	var mysqlErr *gomysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
