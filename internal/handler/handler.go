package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/uma-arai/casa25-portal/internal/model"
	"github.com/uma-arai/casa25-portal/internal/repository"
	"github.com/uma-arai/casa25-portal/internal/service/auth"
	"github.com/uma-arai/casa25-portal/internal/service/notice"
	"github.com/uma-arai/casa25-portal/internal/view"
	"go.uber.org/zap"
)

// weatherTTL は天気の取得結果を使い回す時間です
const weatherTTL = 10 * time.Minute

// StateService は画面から呼び出される予約の操作です
type StateService interface {
	Snapshot() model.Reservation
	Now() time.Time
	AddIssue(ctx context.Context, text string) (model.Issue, error)
	SetFeedback(ctx context.Context, text string) error
	ToggleChecklistItem(ctx context.Context, id string) (bool, error)
	IsCheckoutEligible() bool
	FinalizeCheckout(ctx context.Context) (time.Time, error)
	AdoptGuestIdentity(ctx context.Context, rec model.Reservation) error
}

// AuthService はセッションの操作です
type AuthService interface {
	Authenticate(ctx context.Context, pin string) (auth.Role, error)
	Logout(ctx context.Context) error
	Role() auth.Role
	IsAuthenticated() bool
}

// NoticeSource は表示中の通知の取得元です
type NoticeSource interface {
	Active() []notice.Notice
}

// APIResponse はAPIの共通レスポンスです
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Handler はポータルのAPIハンドラです
type Handler struct {
	state   StateService
	auth    AuthService
	notices NoticeSource
	weather repository.WeatherRepository
	codec   model.Codec
	logger  *zap.SugaredLogger

	weatherCache *cache.Cache
}

// NewHandler は新しいHandlerを作成します。weatherはnilでも構いません
func NewHandler(state StateService, authSvc AuthService, notices NoticeSource, weather repository.WeatherRepository, codec model.Codec, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		state:        state,
		auth:         authSvc,
		notices:      notices,
		weather:      weather,
		codec:        codec,
		logger:       logger,
		weatherCache: cache.New(weatherTTL, 2*weatherTTL),
	}
}

type authRequest struct {
	PIN string `json:"pin"`
}

type issueRequest struct {
	Text string `json:"text"`
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

type checkoutRequest struct {
	Feedback *string `json:"feedback"`
}

type adminReservationRequest struct {
	GuestName   string `json:"guest_name" binding:"required"`
	DoorCode    string `json:"door_code"`
	GuestPin    string `json:"guest_pin" binding:"required"`
	CheckIn     string `json:"check_in" binding:"required"`
	CheckOut    string `json:"check_out" binding:"required"`
	MaxGuests   int    `json:"max_guests"`
	PetsAllowed string `json:"pets_allowed"`
}

// GetState は要求された画面の描画に必要な状態を返します
func (h *Handler) GetState(c *gin.Context) {
	requested, err := view.ParseView(c.Query("view"))
	if err != nil {
		h.logger.Debugw("Unknown view requested", "view", c.Query("view"))
	}

	req := view.Build(view.Input{
		Requested:     requested,
		Reservation:   h.state.Snapshot(),
		Now:           h.state.Now(),
		Role:          h.auth.Role(),
		Authenticated: h.auth.IsAuthenticated(),
		Notices:       h.notices.Active(),
		Weather:       h.currentWeather(c.Request.Context()),
	})
	c.JSON(http.StatusOK, APIResponse{Status: "success", Data: req})
}

// Authenticate はPINで認証します
func (h *Handler) Authenticate(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	role, err := h.auth.Authenticate(c.Request.Context(), req.PIN)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Status: "success", Data: gin.H{"role": role}})
}

// Logout はセッションを終了します
func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Status: "success"})
}

// AddIssue は問題を報告します
func (h *Handler) AddIssue(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	issue, err := h.state.AddIssue(c.Request.Context(), req.Text)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, APIResponse{Status: "success", Data: issue})
}

// SetFeedback は感想を保存します
func (h *Handler) SetFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.state.SetFeedback(c.Request.Context(), req.Feedback); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Status: "success"})
}

// ToggleChecklistItem はチェックリストの項目を反転します
func (h *Handler) ToggleChecklistItem(c *gin.Context) {
	id := c.Param("id")
	done, err := h.state.ToggleChecklistItem(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Status: "success", Data: gin.H{
		"id":       id,
		"done":     done,
		"eligible": h.state.IsCheckoutEligible(),
	}})
}

// CheckoutEligible はチェックアウトできるかを返します
func (h *Handler) CheckoutEligible(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Status: "success", Data: gin.H{"eligible": h.state.IsCheckoutEligible()}})
}

// FinalizeCheckout はチェックリストが完了していればチェックアウトを確定します
func (h *Handler) FinalizeCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, err)
		return
	}

	if !h.state.IsCheckoutEligible() {
		h.writeError(c, model.ErrNotEligible)
		return
	}
	ctx := c.Request.Context()
	if req.Feedback != nil {
		if err := h.state.SetFeedback(ctx, *req.Feedback); err != nil {
			h.writeError(c, err)
			return
		}
	}

	at, err := h.state.FinalizeCheckout(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Status:  "success",
		Message: "¡Gracias por tu visita!",
		Data:    gin.H{"checkout_time": at},
	})
}

// UpdateReservation は管理者が予約を登録・更新します
func (h *Handler) UpdateReservation(c *gin.Context) {
	var req adminReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	checkIn, err := h.codec.ParseTime(req.CheckIn)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	checkOut, err := h.codec.ParseTime(req.CheckOut)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	rec := model.Reservation{
		GuestName:   req.GuestName,
		DoorCode:    req.DoorCode,
		GuestPin:    req.GuestPin,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		MaxGuests:   req.MaxGuests,
		PetsAllowed: model.ParsePetPolicy(req.PetsAllowed),
	}
	if err := h.state.AdoptGuestIdentity(c.Request.Context(), rec); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Status: "success", Message: "Reserva actualizada correctamente"})
}

// GetNotices は表示中の通知を返します
func (h *Handler) GetNotices(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Status: "success", Data: h.notices.Active()})
}

// GetWeather は現在の天気を返します
func (h *Handler) GetWeather(c *gin.Context) {
	w := h.currentWeather(c.Request.Context())
	if w == nil {
		c.JSON(http.StatusServiceUnavailable, APIResponse{Status: "error", Message: "weather unavailable"})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Status: "success", Data: w})
}

func (h *Handler) currentWeather(ctx context.Context) *repository.CurrentWeather {
	if h.weather == nil {
		return nil
	}
	if cached, ok := h.weatherCache.Get("current"); ok {
		w := cached.(repository.CurrentWeather)
		return &w
	}
	w, err := h.weather.Current(ctx)
	if err != nil {
		h.logger.Warnw("Failed to fetch weather", "error", err)
		return nil
	}
	h.weatherCache.SetDefault("current", w)
	return &w
}

// RequireAuth は認証済みのセッションだけを通します
func (h *Handler) RequireAuth(c *gin.Context) {
	if !h.auth.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, APIResponse{Status: "error", Message: "authentication required"})
		return
	}
	c.Next()
}

// RequireUnlocked はチェックイン48時間前を過ぎるまで問題報告とチェックアウトの操作を拒否します
func (h *Handler) RequireUnlocked(c *gin.Context) {
	r := h.state.Snapshot()
	if model.ComputePhase(h.state.Now(), r.CheckIn, r.CheckOut).Locked {
		c.AbortWithStatusJSON(http.StatusForbidden, APIResponse{Status: "error", Message: "not available before arrival"})
		return
	}
	c.Next()
}

// RequireAdmin は管理者のセッションだけを通します
func (h *Handler) RequireAdmin(c *gin.Context) {
	if !h.auth.IsAuthenticated() || h.auth.Role() != auth.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, APIResponse{Status: "error", Message: "admin only"})
		return
	}
	c.Next()
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, APIResponse{Status: "error", Message: err.Error()})
}

// writeError はエラーの種類をHTTPステータスに変換します
func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrEmptyInput),
		errors.Is(err, model.ErrUnknownItem),
		errors.Is(err, model.ErrInvalidReservation),
		errors.Is(err, model.ErrCorruptState):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrPinNotFound):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrExpiredReservation):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrNotEligible):
		status = http.StatusConflict
	case errors.Is(err, model.ErrNetworkUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Errorw("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, APIResponse{Status: "error", Message: err.Error()})
}
