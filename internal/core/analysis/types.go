package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RiskLevel 風險等級
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Rank 回傳等級的排序權重，未知等級視為 -1
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return -1
}

// Valid 檢查是否為已知等級
func (l RiskLevel) Valid() bool {
	return l.Rank() >= 0
}

// ParseRiskLevel 解析風險等級（不分大小寫）
func ParseRiskLevel(raw string) (RiskLevel, error) {
	level := RiskLevel(strings.ToUpper(strings.TrimSpace(raw)))
	if !level.Valid() {
		return "", fmt.Errorf("unknown risk level %q", raw)
	}
	return level, nil
}

// UnmarshalJSON 實現 json.Unmarshaler
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	level, err := ParseRiskLevel(raw)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// MaxLevel 回傳較高的等級
func MaxLevel(a, b RiskLevel) RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// UserPreferences 使用者偏好
type UserPreferences struct {
	Allergies   []string `json:"allergies"`
	Dislikes    []string `json:"dislikes"`
	HealthGoals []string `json:"health_goals"`
}

// MenuItem 菜單項目
type MenuItem struct {
	Name        string   `json:"name"`
	Ingredients []string `json:"ingredients"`
}

// RiskHit 單一命中
type RiskHit struct {
	Term   string    `json:"term"`
	Reason string    `json:"reason"`
	Level  RiskLevel `json:"level"`
}

// AnalysisResult 分析結果
type AnalysisResult struct {
	MenuItems   []MenuItem `json:"menu_items"`
	RiskLevel   RiskLevel  `json:"risk_level"`
	Hits        []RiskHit  `json:"hits"`
	Suggestions []string   `json:"suggestions"`
}

// normalizeSlices 確保序列化時輸出 [] 而非 null
func (r *AnalysisResult) normalizeSlices() {
	if r.MenuItems == nil {
		r.MenuItems = []MenuItem{}
	}
	for i := range r.MenuItems {
		if r.MenuItems[i].Ingredients == nil {
			r.MenuItems[i].Ingredients = []string{}
		}
	}
	if r.Hits == nil {
		r.Hits = []RiskHit{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
}
