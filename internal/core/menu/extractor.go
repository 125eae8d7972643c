package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"menu-analyzer/internal/core/ai/provider"
	"menu-analyzer/internal/core/analysis"
	"menu-analyzer/internal/pkg/common"

	"go.uber.org/zap"
)

var (
	// ErrNoItems 模型回應中沒有可用的菜單項目
	ErrNoItems = errors.New("model response contains no menu items")
	// ErrNoModel 未設定語言模型
	ErrNoModel = errors.New("no language model configured")
)

// Completer 單輪對話模型；*service.Service 即符合此介面
type Completer interface {
	Enabled() bool
	ProcessRequest(ctx context.Context, prompt, imageURL string) (*provider.Response, error)
}

const extractPrompt = `You extract menu items and their ingredients from OCR text.
Return JSON only with the schema: {"menu_items":[{"name":"...","ingredients":["..."]}]}
Keep dish names as written. Do not invent ingredients that are not mentioned.
OCR text:
%s`

// Extractor 以 LLM 將菜單文字轉為結構化項目
type Extractor struct {
	ai Completer
}

// NewExtractor 創建抽取器
func NewExtractor(ai Completer) *Extractor {
	return &Extractor{ai: ai}
}

// Enabled 是否可使用模型抽取
func (x *Extractor) Enabled() bool {
	return x != nil && x.ai != nil && x.ai.Enabled()
}

// Extract 呼叫模型抽取菜單項目
func (x *Extractor) Extract(ctx context.Context, text string) ([]analysis.MenuItem, error) {
	if !x.Enabled() {
		return nil, ErrNoModel
	}

	resp, err := x.ai.ProcessRequest(ctx, fmt.Sprintf(extractPrompt, text), "")
	if err != nil {
		return nil, fmt.Errorf("menu extraction request failed: %w", err)
	}

	items, err := ParseMenuItems(resp.Content)
	if err != nil {
		common.LogWarn("Failed to parse extracted menu items",
			zap.Bool("cache_hit", resp.CacheHit),
			zap.Int("content_length", len(resp.Content)),
			zap.Error(err),
		)
		return nil, err
	}
	return items, nil
}

// ParseMenuItems 寬鬆解析模型回應
//
// 接受 {"menu_items":[...]}、{"items":[...]} 或直接的陣列；ingredients 可為字串陣列或以逗號分隔的字串。
func ParseMenuItems(content string) ([]analysis.MenuItem, error) {
	block := common.ExtractJSONBlock(content)
	if block == "" {
		return nil, ErrNoItems
	}

	var raw interface{}
	if err := common.ParseJSON(block, &raw); err != nil {
		// 模型偶爾會漏掉鍵的雙引號
		if err := common.ParseJSON(common.QuoteJSONKeys(block), &raw); err != nil {
			return nil, fmt.Errorf("invalid menu JSON: %w", err)
		}
	}

	var list []interface{}
	switch v := raw.(type) {
	case []interface{}:
		list = v
	case map[string]interface{}:
		for _, key := range []string{"menu_items", "items", "dishes"} {
			if l, ok := v[key].([]interface{}); ok {
				list = l
				break
			}
		}
	}

	items := make([]analysis.MenuItem, 0, len(list))
	for _, entry := range list {
		if item, ok := parseItem(entry); ok {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items, nil
}

func parseItem(entry interface{}) (analysis.MenuItem, bool) {
	switch v := entry.(type) {
	case string:
		name := strings.TrimSpace(v)
		return analysis.MenuItem{Name: name, Ingredients: []string{}}, name != ""
	case map[string]interface{}:
		name, _ := v["name"].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			return analysis.MenuItem{}, false
		}
		return analysis.MenuItem{Name: name, Ingredients: parseIngredients(v["ingredients"])}, true
	}
	return analysis.MenuItem{}, false
}

func parseIngredients(v interface{}) []string {
	out := []string{}
	switch ings := v.(type) {
	case []interface{}:
		for _, ing := range ings {
			switch s := ing.(type) {
			case string:
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			case map[string]interface{}:
				if name, ok := s["name"].(string); ok && strings.TrimSpace(name) != "" {
					out = append(out, strings.TrimSpace(name))
				}
			}
		}
	case string:
		for _, s := range strings.FieldsFunc(ings, func(r rune) bool { return r == ',' || r == '、' || r == ';' }) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
