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

type commentRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleCreateComment 在卡片下发表评论。
//
// POST /cards/:id/comments。作者用户名在发表时固化成快照。
func (s *Server) handleCreateComment(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Already a user? Please login"})
		return
	}
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := sanitize.Clean(req.Text)
	if strings.TrimSpace(text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment must not be empty"})
		return
	}

	var card model.Card
	if err := s.db.WithContext(c.Request.Context()).Select("id").First(&card, cardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query card failed"})
		return
	}

	comment := model.Comment{
		CardID:         cardID,
		Text:           text,
		AuthorID:       p.ID,
		AuthorUsername: p.Username,
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&comment).Error; err != nil {
		s.logger.Error("create comment failed",
			slog.Uint64("card_id", uint64(cardID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create comment failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Comment was added successfully",
		"comment": toCommentResponse(comment),
	})
}

// handleUpdateComment 编辑评论，作者本人或管理员。
//
// PUT /cards/:id/comments/:commentId
func (s *Server) handleUpdateComment(c *gin.Context) {
	comment, ok := s.loadOwnedComment(c)
	if !ok {
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := sanitize.Clean(req.Text)
	if strings.TrimSpace(text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment must not be empty"})
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Model(comment).UpdateColumn("text", text).Error; err != nil {
		s.logger.Error("update comment failed",
			slog.Uint64("comment_id", uint64(comment.ID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update comment failed"})
		return
	}

	comment.Text = text
	c.JSON(http.StatusOK, gin.H{
		"message": "Comment was updated successfully",
		"comment": toCommentResponse(*comment),
	})
}

// handleDeleteComment 删除评论，作者本人或管理员。
//
// DELETE /cards/:id/comments/:commentId
func (s *Server) handleDeleteComment(c *gin.Context) {
	comment, ok := s.loadOwnedComment(c)
	if !ok {
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Delete(comment).Error; err != nil {
		s.logger.Error("delete comment failed",
			slog.Uint64("comment_id", uint64(comment.ID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete comment failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Comment was deleted successfully"})
}

// loadOwnedComment 加载路径里的评论并做属主校验。
//
// 返回 false 时错误响应已经写好。
func (s *Server) loadOwnedComment(c *gin.Context) (*model.Comment, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Already a user? Please login"})
		return nil, false
	}
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	commentID, ok := parseIDParam(c, "commentId")
	if !ok {
		return nil, false
	}

	var comment model.Comment
	err := s.db.WithContext(c.Request.Context()).
		Where("id = ? AND card_id = ?", commentID, cardID).
		First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query comment failed"})
		return nil, false
	}

	if !canModify(p, comment.AuthorID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the author can modify this comment"})
		return nil, false
	}
	return &comment, true
}
