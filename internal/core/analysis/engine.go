package analysis

import (
	"errors"
	"strings"
)

// ErrInvalidInput 輸入不是文字（非法 UTF-8 或含 NUL）
var ErrInvalidInput = errors.New("invalid input: text payload expected")

// Engine 菜單風險分析引擎
//
// Engine 不保存任何呼叫間的狀態，可由多個 goroutine 同時使用。
type Engine struct {
	policy *Policy
}

// NewEngine 建立分析引擎；p 為 nil 時使用預設策略
func NewEngine(p *Policy) *Engine {
	if p == nil {
		p = DefaultPolicy()
	}
	if !p.index.prepped {
		p.prepare()
	}
	return &Engine{policy: p}
}

// Policy 回傳引擎使用的策略
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Analyze 分析菜單文字
func (e *Engine) Analyze(text string, prefs UserPreferences) (*AnalysisResult, error) {
	if !validText(text) {
		return nil, ErrInvalidInput
	}
	return e.AnalyzeItems(Segment(text), prefs), nil
}

// AnalyzeItems 分析已切分好的菜單項目（例如由 LLM 抽取）
func (e *Engine) AnalyzeItems(items []MenuItem, prefs UserPreferences) *AnalysisResult {
	items = cleanItems(items)
	findings := Match(items, prefs, e.policy)
	hits := Hits(findings)

	result := &AnalysisResult{
		MenuItems:   items,
		RiskLevel:   AggregateRisk(hits),
		Hits:        hits,
		Suggestions: BuildSuggestions(findings, e.policy),
	}
	result.normalizeSlices()
	return result
}

// cleanItems 去除空白並丟棄沒有菜名的項目，不修改呼叫方的切片
func cleanItems(items []MenuItem) []MenuItem {
	out := make([]MenuItem, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		ingredients := make([]string, 0, len(item.Ingredients))
		for _, ing := range item.Ingredients {
			if ing = strings.TrimSpace(ing); ing != "" {
				ingredients = append(ingredients, ing)
			}
		}
		out = append(out, MenuItem{Name: name, Ingredients: ingredients})
	}
	return out
}

// NewPreferences 建立偏好：去空白、丟棄空值、不分大小寫去重（保留第一次的寫法），健康目標統一格式
func NewPreferences(allergies, dislikes, goals []string) UserPreferences {
	canon := make([]string, 0, len(goals))
	for _, g := range goals {
		canon = append(canon, CanonicalGoal(g))
	}
	return UserPreferences{
		Allergies:   dedupeTerms(allergies),
		Dislikes:    dedupeTerms(dislikes),
		HealthGoals: dedupeTerms(canon),
	}
}

// Normalize 回傳正規化後的偏好副本
func (p UserPreferences) Normalize() UserPreferences {
	return NewPreferences(p.Allergies, p.Dislikes, p.HealthGoals)
}

func dedupeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := map[string]bool{}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		key := normalizeTerm(t)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
