package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Kai-Ger/CardGallery/internal/api/middleware"
	"github.com/Kai-Ger/CardGallery/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

type sentCardResponse struct {
	ID       uint   `json:"id"`
	CardID   uint   `json:"card_id"`
	CardName string `json:"card_name"`
	SentDate string `json:"sent_date"`
}

// handleAddWish 把卡片加入当前用户的愿望单。
//
// POST /cards/:id/wish，需要已激活的账号。
func (s *Server) handleAddWish(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Already a user? Please login"})
		return
	}
	cardID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	card, err := s.wishStore.AddWish(c.Request.Context(), p.ID, cardID)
	switch {
	case errors.Is(err, ErrCardNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
		return
	case errors.Is(err, ErrDuplicateWish):
		c.JSON(http.StatusConflict, gin.H{"error": "You have already wished for this card"})
		return
	case err != nil:
		s.logger.Error("add wish failed",
			slog.Uint64("user_id", uint64(p.ID)),
			slog.Uint64("card_id", uint64(cardID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "add wish failed"})
		return
	}

	metrics.WishAddedTotal.Inc()

	// 管理员通知是尽力而为，不影响许愿结果
	if err := s.mailer.SendWishAdded(p.Username, card.Name); err != nil {
		s.logger.Warn("send wish notification failed",
			slog.String("username", p.Username),
			slog.String("error", err.Error()))
	}

	s.logger.Info("wish added", slog.Uint64("user_id", uint64(p.ID)), slog.String("card", card.Name))
	c.JSON(http.StatusOK, gin.H{"message": "The card was added to your wishlist!"})
}

// handleRemoveWish 把卡片从愿望单移除。
//
// DELETE /users/:id/wishes/:cardId，属主本人或管理员。
func (s *Server) handleRemoveWish(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Already a user? Please login"})
		return
	}
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	cardID, ok := parseIDParam(c, "cardId")
	if !ok {
		return
	}
	if !canModify(p, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You need to have Admin permissions in order to proceed"})
		return
	}

	err := s.wishStore.RemoveWish(c.Request.Context(), userID, cardID)
	switch {
	case errors.Is(err, ErrWishNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Wish not found"})
		return
	case err != nil:
		s.logger.Error("remove wish failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Uint64("card_id", uint64(cardID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remove wish failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "The card was removed from the wishlist"})
}

// handleFulfillWish 寄出用户愿望单里的一张卡片（管理员）。
//
// POST /users/:id/sent/:cardId。库存不足时整个操作不产生任何副作用。
func (s *Server) handleFulfillWish(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	cardID, ok := parseIDParam(c, "cardId")
	if !ok {
		return
	}

	sent, err := s.wishStore.FulfillWish(c.Request.Context(), userID, cardID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	case errors.Is(err, ErrCardNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
		return
	case errors.Is(err, ErrOutOfStock):
		metrics.OutOfStockRejectedTotal.Inc()
		c.JSON(http.StatusConflict, gin.H{"error": "Card is out of stock"})
		return
	case err != nil:
		s.logger.Error("fulfill wish failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Uint64("card_id", uint64(cardID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fulfill wish failed"})
		return
	}

	metrics.WishFulfilledTotal.Inc()

	// 给用户发寄出通知，失败只记日志
	if user, err := s.userStore.GetUser(c.Request.Context(), userID); err == nil {
		if err := s.mailer.SendWishFulfilled(user.Email, user.Username, sent.SentCardName); err != nil {
			s.logger.Warn("send fulfillment notification failed",
				slog.String("email", user.Email),
				slog.String("error", err.Error()))
		}
	}

	s.logger.Info("wish fulfilled",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("card", sent.SentCardName))
	c.JSON(http.StatusOK, gin.H{
		"message": "The card was sent successfully",
		"sent": sentCardResponse{
			ID:       sent.ID,
			CardID:   sent.CardID,
			CardName: sent.SentCardName,
			SentDate: sent.SentDate.Format("2006-01-02 15:04:05"),
		},
	})
}

// handleRemoveSentRecord 删除一条寄出记录（管理员）。
//
// DELETE /users/:id/sent/:sentId。删除记录不回补库存。
func (s *Server) handleRemoveSentRecord(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	sentID, ok := parseIDParam(c, "sentId")
	if !ok {
		return
	}

	err := s.wishStore.RemoveSentRecord(c.Request.Context(), userID, sentID)
	switch {
	case errors.Is(err, ErrSentRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Sent record not found"})
		return
	case err != nil:
		s.logger.Error("remove sent record failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.Uint64("sent_id", uint64(sentID)),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remove sent record failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "The sent record was removed"})
}
