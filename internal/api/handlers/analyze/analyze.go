package analyze

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"menu-analyzer/internal/core/analysis"
	"menu-analyzer/internal/core/menu"
	"menu-analyzer/internal/core/preferences"
	"menu-analyzer/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AnalysisIDHeader 回傳分析紀錄 ID 的標頭
const AnalysisIDHeader = "X-Analysis-ID"

// AnalyzeRequest 菜單文字分析請求
type AnalyzeRequest struct {
	Text        *string                   `json:"text"`
	Preferences *analysis.UserPreferences `json:"preferences,omitempty"`
	ProfileID   string                    `json:"profile_id,omitempty"` // 未提供 preferences 時使用已儲存的偏好
}

// Handler 分析處理程序
type Handler struct {
	menuService *menu.Service
	prefsStore  preferences.Store
	debug       bool
}

// NewHandler 創建新的分析處理程序；prefsStore 可為 nil
func NewHandler(menuService *menu.Service, prefsStore preferences.Store, debug bool) *Handler {
	return &Handler{
		menuService: menuService,
		prefsStore:  prefsStore,
		debug:       debug,
	}
}

// HandleAnalyze 處理 /analyze 菜單文字分析
func (h *Handler) HandleAnalyze(c *gin.Context) {
	requestID := common.RequestID(c)

	var req AnalyzeRequest
	if err := common.DecodeJSON(c.Request.Body, &req); err != nil {
		common.LogWarn("請求格式無效",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
		h.fail(c, bodyError(err))
		return
	}
	if req.Text == nil {
		h.fail(c, common.ErrInvalidRequest.WithMessage("缺少 text 欄位"))
		return
	}

	prefs, err := h.resolvePreferences(c, req.Preferences, req.ProfileID)
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.menuService.AnalyzeText(c.Request.Context(), *req.Text, prefs)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.respond(c, result)
}

// HandleAnalyzeImage 處理 /analyze-image：multipart 的 image 與 preferences（JSON 字串）
func (h *Handler) HandleAnalyzeImage(c *gin.Context) {
	requestID := common.RequestID(c)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.fail(c, common.ErrPayloadTooLarge)
			return
		}
		h.fail(c, common.ErrInvalidRequest.WithMessage("缺少 image 檔案").Wrap(err))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.fail(c, common.ErrInvalidRequest.Wrap(err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(c, common.ErrInvalidRequest.Wrap(err))
		return
	}

	// preferences 解析失敗時視為沒有偏好
	var formPrefs *analysis.UserPreferences
	if raw := strings.TrimSpace(c.PostForm("preferences")); raw != "" {
		var p analysis.UserPreferences
		if err := common.ParseJSON(raw, &p); err != nil {
			common.LogWarn("Ignoring malformed preferences",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
			p = analysis.UserPreferences{}
		}
		formPrefs = &p
	}

	prefs, err := h.resolvePreferences(c, formPrefs, c.PostForm("profile_id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	common.LogInfo("開始處理菜單圖片分析",
		zap.String("request_id", requestID),
		zap.String("filename", fileHeader.Filename),
		zap.Int("size", len(data)),
		zap.String("ocr_provider", h.menuService.OCRName()),
	)

	result, err := h.menuService.AnalyzeImage(c.Request.Context(), data, fileHeader.Header.Get("Content-Type"), prefs)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.respond(c, result)
}

// resolvePreferences 請求中的偏好優先，其次為 profile_id 對應的儲存偏好
func (h *Handler) resolvePreferences(c *gin.Context, given *analysis.UserPreferences, profileID string) (analysis.UserPreferences, error) {
	if given != nil {
		return given.Normalize(), nil
	}
	profileID = strings.TrimSpace(profileID)
	if profileID == "" || h.prefsStore == nil {
		return analysis.NewPreferences(nil, nil, nil), nil
	}

	prefs, err := h.prefsStore.Get(c.Request.Context(), profileID)
	switch {
	case err == nil:
		return prefs, nil
	case errors.Is(err, preferences.ErrNotFound):
		return analysis.UserPreferences{}, common.ErrNotFound.WithMessage("偏好設定不存在")
	case common.IsValidationError(err):
		return analysis.UserPreferences{}, common.ErrInvalidRequest.WithMessage(err.Error())
	default:
		return analysis.UserPreferences{}, common.ErrServiceUnavailable.Wrap(err)
	}
}

func (h *Handler) respond(c *gin.Context, result *menu.Result) {
	if result.HistoryID != "" {
		c.Header(AnalysisIDHeader, result.HistoryID)
	}
	c.JSON(http.StatusOK, result.Analysis)
}

func (h *Handler) fail(c *gin.Context, err error) {
	ce := common.AsCustomError(err)
	if ce.Status >= http.StatusInternalServerError {
		common.LogError("分析請求失敗",
			zap.String("request_id", common.RequestID(c)),
			zap.String("code", ce.Code),
			zap.Error(err),
		)
	}
	common.WriteError(c, ce, h.debug)
}

// bodyError 將讀取請求體的錯誤轉為 API 錯誤
func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return common.ErrPayloadTooLarge
	}
	return common.ErrInvalidRequest.Wrap(err)
}
