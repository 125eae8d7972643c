package history

import (
	"errors"
	"net/http"
	"strconv"

	historyStore "menu-analyzer/internal/core/history"
	"menu-analyzer/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// ListResponse 紀錄列表響應
type ListResponse struct {
	Records []*historyStore.Record `json:"records"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// Handler 分析紀錄處理程序
type Handler struct {
	store historyStore.Store
	debug bool
}

// NewHandler 創建新的紀錄處理程序
func NewHandler(store historyStore.Store, debug bool) *Handler {
	return &Handler{store: store, debug: debug}
}

// HandleList 由新到舊列出紀錄
func (h *Handler) HandleList(c *gin.Context) {
	page, err := parsePagination(c)
	if err != nil {
		common.WriteError(c, err, h.debug)
		return
	}

	records, err := h.store.List(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		common.LogError("Failed to list history",
			zap.String("request_id", common.RequestID(c)),
			zap.Error(err),
		)
		common.WriteError(c, common.ErrServiceUnavailable.Wrap(err), h.debug)
		return
	}

	c.JSON(http.StatusOK, ListResponse{Records: records, Limit: page.Limit, Offset: page.Offset})
}

// HandleGet 取得單筆紀錄
func (h *Handler) HandleGet(c *gin.Context) {
	rec, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.WriteError(c, storeError(err), h.debug)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleDelete 刪除單筆紀錄
func (h *Handler) HandleDelete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		common.WriteError(c, storeError(err), h.debug)
		return
	}
	c.Status(http.StatusNoContent)
}

func parsePagination(c *gin.Context) (common.Pagination, error) {
	var page common.Pagination
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, common.ErrInvalidRequest.WithMessage("limit 必須是非負整數")
		}
		page.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, common.ErrInvalidRequest.WithMessage("offset 必須是非負整數")
		}
		page.Offset = n
	}
	return page.Normalize(defaultLimit, maxLimit), nil
}

func storeError(err error) error {
	if errors.Is(err, historyStore.ErrNotFound) {
		return common.ErrNotFound.WithMessage("紀錄不存在")
	}
	return common.ErrServiceUnavailable.Wrap(err)
}
