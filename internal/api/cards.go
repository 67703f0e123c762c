package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Kai-Ger/CardGallery/internal/model"
	"github.com/Kai-Ger/CardGallery/internal/pkg/imagestore"
	"github.com/Kai-Ger/CardGallery/internal/pkg/sanitize"

	"github.com/gin-gonic/gin"
)

// maxImageSize 上传图片的大小上限。
const maxImageSize = 10 << 20 // 10 MiB

type cardResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	Amount      int    `json:"amount"`
}

type commentResponse struct {
	ID             uint   `json:"id"`
	Text           string `json:"text"`
	AuthorID       uint   `json:"author_id"`
	AuthorUsername string `json:"author_username"`
	CreatedAt      string `json:"created_at"`
}

func toCardResponse(card model.Card) cardResponse {
	return cardResponse{
		ID:          card.ID,
		Name:        card.Name,
		Description: card.Description,
		ImageURL:    card.ImageURL,
		Amount:      card.Amount,
	}
}

func toCommentResponse(comment model.Comment) commentResponse {
	return commentResponse{
		ID:             comment.ID,
		Text:           comment.Text,
		AuthorID:       comment.AuthorID,
		AuthorUsername: comment.AuthorUsername,
		CreatedAt:      comment.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// handleListCards 分页返回卡片目录。
//
// GET /cards?page=N&search=xxx
func (s *Server) handleListCards(c *gin.Context) {
	page := 1
	if v := c.Query("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			page = parsed
		}
	}
	search := strings.TrimSpace(c.Query("search"))

	result, err := s.cardStore.ListCards(c.Request.Context(), page, s.cfg.App.PageSize, search)
	if err != nil {
		s.logger.Error("list cards failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list cards failed"})
		return
	}

	cards := make([]cardResponse, 0, len(result.Cards))
	for _, card := range result.Cards {
		cards = append(cards, toCardResponse(card))
	}

	c.JSON(http.StatusOK, gin.H{
		"cards":    cards,
		"current":  result.Current,
		"pages":    result.Pages,
		"search":   search,
		"no_match": result.NoMatch,
	})
}

// handleGetCard 返回单张卡片及其评论。
//
// GET /cards/:id
func (s *Server) handleGetCard(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	card, err := s.cardStore.GetCard(c.Request.Context(), id)
	if errors.Is(err, ErrCardNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
		return
	}
	if err != nil {
		s.logger.Error("get card failed", slog.Uint64("card_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get card failed"})
		return
	}

	comments := make([]commentResponse, 0, len(card.Comments))
	for _, comment := range card.Comments {
		comments = append(comments, toCommentResponse(comment))
	}

	c.JSON(http.StatusOK, gin.H{
		"card":     toCardResponse(*card),
		"comments": comments,
	})
}

// handleCreateCard 新建卡片（管理员）。
//
// POST /cards，multipart 表单：name、description、amount、image（文件）。
func (s *Server) handleCreateCard(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	amount := 0
	if v := c.PostForm("amount"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a non-negative number"})
			return
		}
		amount = parsed
	}

	image, ok := s.uploadFormImage(c)
	if !ok {
		return
	}
	if image == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}

	card := model.Card{
		Name:           name,
		Description:    sanitize.Clean(c.PostForm("description")),
		ImageURL:       image.URL,
		ImageStorageID: image.StorageID,
		Amount:         amount,
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&card).Error; err != nil {
		// 卡片没建起来，别让图片变成孤儿对象
		if delErr := s.images.Delete(c.Request.Context(), image.StorageID); delErr != nil {
			s.logger.Warn("delete orphan image failed", slog.String("storage_id", image.StorageID), slog.String("error", delErr.Error()))
		}
		s.logger.Error("create card failed", slog.String("name", name), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create card failed"})
		return
	}

	s.logger.Info("card created", slog.Uint64("card_id", uint64(card.ID)), slog.String("name", name))
	c.JSON(http.StatusCreated, gin.H{
		"message": "Card was created successfully",
		"card":    toCardResponse(card),
	})
}

// handleUpdateCard 更新卡片（管理员）。
//
// PUT /cards/:id，multipart 表单，字段都可选；带 image 时替换图片，
// 旧图片尽力删除，删除失败只记日志。
func (s *Server) handleUpdateCard(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var card model.Card
	if err := s.db.WithContext(c.Request.Context()).First(&card, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
		return
	}

	updates := map[string]interface{}{}
	if v, exists := c.GetPostForm("name"); exists {
		name := strings.TrimSpace(v)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
			return
		}
		updates["name"] = name
	}
	if v, exists := c.GetPostForm("description"); exists {
		updates["description"] = sanitize.Clean(v)
	}
	if v, exists := c.GetPostForm("amount"); exists {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a non-negative number"})
			return
		}
		updates["amount"] = parsed
	}

	image, okUpload := s.uploadFormImage(c)
	if !okUpload {
		return
	}
	if image != nil {
		if card.ImageStorageID != "" {
			if err := s.images.Delete(c.Request.Context(), card.ImageStorageID); err != nil {
				s.logger.Warn("delete old image failed", slog.String("storage_id", card.ImageStorageID), slog.String("error", err.Error()))
			}
		}
		updates["image_url"] = image.URL
		updates["image_storage_id"] = image.StorageID
	}

	if len(updates) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "Nothing to update", "card": toCardResponse(card)})
		return
	}

	if err := s.db.WithContext(c.Request.Context()).Model(&card).Updates(updates).Error; err != nil {
		s.logger.Error("update card failed", slog.Uint64("card_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update card failed"})
		return
	}

	// 回读一次，响应里带上更新后的值
	if err := s.db.WithContext(c.Request.Context()).First(&card, id).Error; err != nil {
		s.logger.Warn("reload card after update failed", slog.Uint64("card_id", uint64(id)), slog.String("error", err.Error()))
	}

	s.logger.Info("card updated", slog.Uint64("card_id", uint64(id)))
	c.JSON(http.StatusOK, gin.H{
		"message": "Card was updated successfully",
		"card":    toCardResponse(card),
	})
}

// handleDeleteCard 删除卡片（管理员）。
//
// DELETE /cards/:id。图片删除失败不阻塞数据库级联清理。
func (s *Server) handleDeleteCard(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	card, err := s.cardStore.GetCard(c.Request.Context(), id)
	if errors.Is(err, ErrCardNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get card failed"})
		return
	}

	if card.ImageStorageID != "" {
		if err := s.images.Delete(c.Request.Context(), card.ImageStorageID); err != nil {
			s.logger.Warn("delete card image failed", slog.String("storage_id", card.ImageStorageID), slog.String("error", err.Error()))
		}
	}

	if err := s.cardStore.DeleteCardCascade(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrCardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Card not found"})
			return
		}
		s.logger.Error("delete card failed", slog.Uint64("card_id", uint64(id)), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete card failed"})
		return
	}

	s.logger.Info("card deleted", slog.Uint64("card_id", uint64(id)), slog.String("name", card.Name))
	c.JSON(http.StatusOK, gin.H{"message": "Card was deleted successfully"})
}

// uploadFormImage 读取表单里的 image 文件并上传。
//
// 返回 (nil, true) 表示表单里没有文件；返回 (nil, false) 表示已写好
// 错误响应，调用方直接 return。
func (s *Server) uploadFormImage(c *gin.Context) (*imagestore.Image, bool) {
	header, err := c.FormFile("image")
	if err != nil {
		return nil, true
	}

	if !imagestore.IsAllowedImage(header.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only image files are allowed!"})
		return nil, false
	}
	if header.Size > maxImageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file too large"})
		return nil, false
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read image failed"})
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
	if err != nil || int64(len(data)) > maxImageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read image failed"})
		return nil, false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	image, err := s.images.Upload(c.Request.Context(), header.Filename, contentType, data)
	if err != nil {
		s.logger.Error("upload image failed", slog.String("filename", header.Filename), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload image failed"})
		return nil, false
	}
	return image, true
}
