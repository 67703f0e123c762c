package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Kai-Ger/CardGallery/internal/api/middleware"
	"github.com/Kai-Ger/CardGallery/internal/model"
	"github.com/Kai-Ger/CardGallery/internal/pkg/notify"
	"github.com/Kai-Ger/CardGallery/internal/pkg/sanitize"
	"github.com/Kai-Ger/CardGallery/internal/pkg/session"

	"github.com/gin-gonic/gin"
	gomysql "github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// resetTokenTTL 密码重置令牌的有效期。
const resetTokenTTL = time.Hour

// Handler 提供注册、登录与密码找回接口。
type Handler struct {
	db         *gorm.DB
	sessions   *session.Store
	mailer     notify.Notifier
	baseURL    string
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(db *gorm.DB, sessions *session.Store, mailer notify.Notifier, baseURL string, sessionTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		db:         db,
		sessions:   sessions,
		mailer:     mailer,
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

type registerRequest struct {
	Username     string `json:"username" binding:"required,min=2,max=64"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=6"`
	Introduction string `json:"introduction"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type forgotRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetRequest struct {
	Password  string `json:"password" binding:"required,min=6"`
	Password2 string `json:"password_2" binding:"required"`
}

// Register 创建新用户。
//
// 新账号是未激活状态，注册成功会发送带确认链接的邮件；
// 邮件发送失败时回滚刚创建的用户（和没注册过一样，可以重试）。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username := strings.TrimSpace(strings.ToLower(req.Username))
	email := strings.TrimSpace(strings.ToLower(req.Email))

	token, err := generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := model.User{
		Username:      username,
		Email:         email,
		Password:      string(hash),
		Introduction:  sanitize.Clean(req.Introduction),
		Active:        false,
		ActivateToken: token,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if isDuplicateKey(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "This Email has already been registered"})
			return
		}
		h.logger.Error("create user failed", slog.String("username", username), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	link := fmt.Sprintf("%s/register/%s", h.baseURL, token)
	if err := h.mailer.SendActivation(user.Email, user.Username, link); err != nil {
		_ = h.db.Delete(&user).Error
		h.logger.Warn("send activation email failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again"})
		return
	}

	h.logger.Info("user registered", slog.String("username", username), slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{"message": "An e-mail has been sent to " + user.Email + " with further instructions."})
}

// Activate 通过邮件里的令牌确认邮箱。
//
// GET /register/:token
func (h *Handler) Activate(c *gin.Context) {
	token := c.Param("token")

	var user model.User
	err := h.db.WithContext(c.Request.Context()).
		Where("activate_token = ? AND activate_token <> ''", token).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Activation token is invalid."})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	updates := map[string]interface{}{
		"active":         true,
		"activate_token": "",
	}
	if err := h.db.WithContext(c.Request.Context()).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		h.logger.Error("activate user failed", slog.String("username", user.Username), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "activate failed"})
		return
	}

	h.logger.Info("account activated", slog.String("username", user.Username))
	c.JSON(http.StatusOK, gin.H{"message": "Your account is now active. Please login."})
}

// Login 校验用户名密码并建立会话。
//
// 任何失败都返回同一条 "invalid credentials"，不暴露账号是否存在。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := strings.TrimSpace(strings.ToLower(req.Username))

	var user model.User
	if err := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Please submit a valid username and password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Please submit a valid username and password"})
		return
	}

	if err := h.establishSession(c, user.ID); err != nil {
		h.logger.Error("create session failed", slog.String("username", username), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create session failed"})
		return
	}

	h.logger.Info("user logged in", slog.String("username", username))
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome back!",
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"is_admin": user.IsAdmin,
			"active":   user.Active,
		},
	})
}

// Logout 销毁会话并清掉 cookie。
func (h *Handler) Logout(c *gin.Context) {
	if token, err := c.Cookie(middleware.CookieName); err == nil && token != "" {
		if err := h.sessions.Destroy(c.Request.Context(), token); err != nil {
			h.logger.Warn("destroy session failed", slog.String("error", err.Error()))
		}
	}
	c.SetCookie(middleware.CookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "No user is logged"})
}

// Forgot 为邮箱签发密码重置令牌并发送重置链接。
//
// 未知邮箱会返回明确的提示（沿用线上行为，存在账号枚举问题，
// 靠 /forgot 上的限流兜底）。
func (h *Handler) Forgot(c *gin.Context) {
	var req forgotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	var user model.User
	err := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.logger.Warn("password reset for unknown email", slog.String("email", email))
		c.JSON(http.StatusNotFound, gin.H{"error": "No account with that email address exists."})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	token, err := generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again"})
		return
	}
	expires := time.Now().Add(resetTokenTTL)

	updates := map[string]interface{}{
		"reset_token":      token,
		"reset_expires_at": &expires,
	}
	if err := h.db.WithContext(c.Request.Context()).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		h.logger.Error("save reset token failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save reset token failed"})
		return
	}

	link := fmt.Sprintf("%s/reset/%s", h.baseURL, token)
	if err := h.mailer.SendPasswordReset(user.Email, user.Username, link); err != nil {
		h.logger.Warn("send reset email failed", slog.String("email", email), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again"})
		return
	}

	h.logger.Info("password reset requested", slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{"message": "An e-mail has been sent to " + user.Email + " with further instructions."})
}

// ResetForm 校验重置令牌是否仍然有效。
//
// GET /reset/:token，前端用它决定是否展示新密码表单。
func (h *Handler) ResetForm(c *gin.Context) {
	if _, err := h.findUserByResetToken(c, c.Param("token")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password reset token is invalid or has expired."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// Reset 用有效令牌设置新密码，随后重新建立会话并发送确认邮件。
func (h *Handler) Reset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Password != req.Password2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Passwords do not match."})
		return
	}

	user, err := h.findUserByResetToken(c, c.Param("token"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password reset token is invalid or has expired."})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	updates := map[string]interface{}{
		"password":         string(hash),
		"reset_token":      "",
		"reset_expires_at": nil,
	}
	if err := h.db.WithContext(c.Request.Context()).Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		h.logger.Error("reset password failed", slog.String("username", user.Username), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset password failed"})
		return
	}

	if err := h.establishSession(c, user.ID); err != nil {
		h.logger.Warn("create session after reset failed", slog.String("error", err.Error()))
	}

	if err := h.mailer.SendPasswordChanged(user.Email, user.Username); err != nil {
		h.logger.Warn("send password changed email failed", slog.String("email", user.Email), slog.String("error", err.Error()))
	}

	h.logger.Info("password changed", slog.String("username", user.Username))
	c.JSON(http.StatusOK, gin.H{"message": "Your password has been changed!"})
}

func (h *Handler) findUserByResetToken(c *gin.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user model.User
	err := h.db.WithContext(c.Request.Context()).
		Where("reset_token = ? AND reset_expires_at > ?", token, time.Now()).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (h *Handler) establishSession(c *gin.Context, userID uint) error {
	token, err := h.sessions.Create(c.Request.Context(), userID)
	if err != nil {
		return err
	}
	c.SetCookie(middleware.CookieName, token, int(h.sessionTTL.Seconds()), "/", "", false, true)
	return nil
}

// generateToken 生成 20 字节随机令牌的 hex 表示（激活与重置共用）。
func generateToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *gomysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
