package preferences

import (
	"errors"
	"net/http"

	"menu-analyzer/internal/core/analysis"
	prefsStore "menu-analyzer/internal/core/preferences"
	"menu-analyzer/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProfileResponse 偏好設定響應
type ProfileResponse struct {
	ProfileID   string                   `json:"profile_id"`
	Preferences analysis.UserPreferences `json:"preferences"`
}

// Handler 偏好設定處理程序
type Handler struct {
	store prefsStore.Store
	debug bool
}

// NewHandler 創建新的偏好設定處理程序
func NewHandler(store prefsStore.Store, debug bool) *Handler {
	return &Handler{store: store, debug: debug}
}

// HandleGet 取得偏好設定
func (h *Handler) HandleGet(c *gin.Context) {
	id := c.Param("profile_id")
	prefs, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{ProfileID: id, Preferences: prefs})
}

// HandlePut 正規化並儲存偏好設定
func (h *Handler) HandlePut(c *gin.Context) {
	id := c.Param("profile_id")

	var prefs analysis.UserPreferences
	if err := common.DecodeJSON(c.Request.Body, &prefs); err != nil {
		h.fail(c, common.ErrInvalidRequest.Wrap(err))
		return
	}

	saved, err := h.store.Put(c.Request.Context(), id, prefs)
	if err != nil {
		h.fail(c, err)
		return
	}

	common.LogInfo("Preferences saved",
		zap.String("profile_id", id),
		zap.Int("allergies", len(saved.Allergies)),
		zap.Int("dislikes", len(saved.Dislikes)),
		zap.Int("health_goals", len(saved.HealthGoals)),
	)
	c.JSON(http.StatusOK, ProfileResponse{ProfileID: id, Preferences: saved})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, prefsStore.ErrNotFound):
		err = common.ErrNotFound.WithMessage("偏好設定不存在")
	case common.IsValidationError(err):
		err = common.ErrInvalidRequest.WithMessage(err.Error())
	default:
		var ce *common.CustomError
		if !errors.As(err, &ce) {
			err = common.ErrServiceUnavailable.Wrap(err)
		}
	}
	common.WriteError(c, err, h.debug)
}
