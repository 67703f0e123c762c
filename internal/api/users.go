package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Kai-Ger/CardGallery/internal/api/middleware"
	"github.com/Kai-Ger/CardGallery/internal/model"
	"github.com/Kai-Ger/CardGallery/internal/pkg/sanitize"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type userResponse struct {
	ID             uint   `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	Introduction   string `json:"introduction"`
	IsAdmin        bool   `json:"is_admin"`
	Active         bool   `json:"active"`
	WishesCount    int    `json:"wishes_count"`
	SentCardsCount int    `json:"sent_cards_count"`
}

func toUserResponse(user model.User) userResponse {
	return userResponse{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		Introduction:   user.Introduction,
		IsAdmin:        user.IsAdmin,
		Active:         user.Active,
		WishesCount:    user.WishesCount,
		SentCardsCount: user.SentCardsCount,
	}
}

// handleListUsers 返回所有用户（管理员）。
//
// GET /users
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.userStore.ListUsers(c.Request.Context())
	if err != nil {
		s.logger.Error("list users failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, user := range users {
		resp = append(resp, toUserResponse(user))
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}

// handleGetUser 返回用户资料、愿望单与寄出历史。
//
// GET /users/:id，属主本人或管理员。
func (s *Server) handleGetUser(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Already a user? Please login"})
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if !canModify(p, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You need to have Admin permissions in order to proceed"})
		return
	}

	user, err := s.userStore.GetUserProfile(c.Request.Context(), userID)
	if errors.Is(err, ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		s.logger.Error("get user failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get user failed"})
		return
	}

	wishes := make([]cardResponse, 0, len(user.Wishes))
	for _, card := range user.Wishes {
		wishes = append(wishes, toCardResponse(card))
	}
	sent := make([]sentCardResponse, 0, len(user.SentCards))
	for _, record := range user.SentCards {
		sent = append(sent, sentCardResponse{
			ID:       record.ID,
			CardID:   record.CardID,
			CardName: record.SentCardName,
			SentDate: record.SentDate.Format("2006-01-02 15:04:05"),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"user":       toUserResponse(*user),
		"wishes":     wishes,
		"sent_cards": sent,
	})
}

type updateUserRequest struct {
	Email        *string `json:"email"`
	Introduction *string `json:"introduction"`
}

// handleUpdateUser 更新邮箱或自我介绍，属主本人或管理员。
//
// PUT /users/:id
func (s *Server) handleUpdateUser(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Already a user? Please login"})
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if !canModify(p, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You need to have Admin permissions in order to proceed"})
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email must not be empty"})
			return
		}
		updates["email"] = email
	}
	if req.Introduction != nil {
		updates["introduction"] = sanitize.Clean(*req.Introduction)
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	res := s.db.WithContext(c.Request.Context()).Model(&model.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			c.JSON(http.StatusConflict, gin.H{"error": "This Email has already been registered"})
			return
		}
		s.logger.Error("update user failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", res.Error.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}
	if res.RowsAffected == 0 {
		var count int64
		s.db.WithContext(c.Request.Context()).Model(&model.User{}).Where("id = ?", userID).Count(&count)
		if count == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile was updated successfully"})
}

// handleDeleteUser 删除用户及其愿望与寄出记录（管理员）。
//
// DELETE /users/:id。用户的评论保留，作者名快照还在。
func (s *Server) handleDeleteUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.Wish{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.SentCard{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.User{}, userID).Error
	})
	if errors.Is(err, ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		s.logger.Error("delete user failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete user failed"})
		return
	}

	s.logger.Info("user deleted", slog.Uint64("user_id", uint64(userID)))
	c.JSON(http.StatusOK, gin.H{"message": "User was deleted successfully"})
}
