package analysis

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// HazardGroup 內建過敏原詞庫中的一組同義詞
type HazardGroup struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// GoalRule 健康目標對應的關鍵字與等級
type GoalRule struct {
	Keywords []string  `yaml:"keywords"`
	Level    RiskLevel `yaml:"level"`
}

// Messages 建議文字模板
type Messages struct {
	Avoid         string `yaml:"avoid"`          // HIGH，參數：菜名、詞
	Reconsider    string `yaml:"reconsider"`     // MEDIUM，參數：菜名、詞
	NoConcerns    string `yaml:"no_concerns"`    // 無命中
	LexiconOnly   string `yaml:"lexicon_only"`   // 只有 LOW 命中，參數：詞列表
	AllergyReason string `yaml:"allergy_reason"` // 參數：使用者的詞、命中內容、菜名
	DislikeReason string `yaml:"dislike_reason"` // 參數：使用者的詞、命中內容、菜名
	GoalReason    string `yaml:"goal_reason"`    // 參數：目標、命中內容、菜名
	LexiconReason string `yaml:"lexicon_reason"` // 參數：分類、命中內容、菜名
}

// Policy 風險判定策略
//
// 所有等級、詞庫、建議上限都可由 YAML 覆寫；載入後視為唯讀。
type Policy struct {
	AllergyLevel        RiskLevel           `yaml:"allergy_level"`
	DislikeLevel        RiskLevel           `yaml:"dislike_level"`
	LexiconLevel        RiskLevel           `yaml:"lexicon_level"`
	LexiconAllergyLevel RiskLevel           `yaml:"lexicon_allergy_level"`
	MaxSuggestions      int                 `yaml:"max_suggestions"`
	Lexicon             []HazardGroup       `yaml:"lexicon"`
	LexiconExclusions   []string            `yaml:"lexicon_exclusions"`
	HealthGoals         map[string]GoalRule `yaml:"health_goals"`
	Messages            Messages            `yaml:"messages"`

	index lexiconIndex
}

// lexiconIndex 正規化後的詞庫索引
type lexiconIndex struct {
	groups     []indexedGroup
	byTerm     map[string]int
	exclusions []string
	prepped    bool
}

type indexedGroup struct {
	name  string
	terms []string
}

// UnmarshalYAML 讓策略檔可直接寫 low / medium / high
func (l *RiskLevel) UnmarshalYAML(value *yaml.Node) error {
	level, err := ParseRiskLevel(value.Value)
	if err != nil {
		return err
	}
	*l = level
	return nil
}

// DefaultPolicy 預設策略
func DefaultPolicy() *Policy {
	p := &Policy{
		AllergyLevel:        RiskHigh,
		DislikeLevel:        RiskMedium,
		LexiconLevel:        RiskLow,
		LexiconAllergyLevel: RiskHigh,
		MaxSuggestions:      5,
		Lexicon: []HazardGroup{
			{Name: "peanut", Terms: []string{"peanut", "groundnut", "花生"}},
			{Name: "tree nut", Terms: []string{"tree nut", "almond", "walnut", "cashew", "pecan", "pistachio", "hazelnut", "macadamia", "核桃", "杏仁", "腰果"}},
			{Name: "milk", Terms: []string{"milk", "dairy", "cheese", "butter", "cream", "yogurt", "whey", "牛奶", "乳製品", "起司", "奶油"}},
			{Name: "egg", Terms: []string{"egg", "mayonnaise", "雞蛋", "蛋"}},
			{Name: "gluten", Terms: []string{"gluten", "wheat", "barley", "rye", "flour", "麩質", "小麥", "麵粉"}},
			{Name: "soy", Terms: []string{"soy", "soybean", "tofu", "edamame", "黃豆", "大豆", "豆腐"}},
			{Name: "fish", Terms: []string{"fish", "salmon", "tuna", "cod", "anchovy", "魚"}},
			{Name: "shellfish", Terms: []string{"shellfish", "shrimp", "prawn", "crab", "lobster", "clam", "oyster", "mussel", "scallop", "蝦", "蟹", "貝"}},
			{Name: "sesame", Terms: []string{"sesame", "tahini", "芝麻"}},
		},
		LexiconExclusions: []string{
			"eggplant", "butternut", "buckwheat", "coconut milk", "oat milk", "rice milk", "cream of tartar",
		},
		HealthGoals: map[string]GoalRule{
			"low_sugar": {Keywords: []string{"sugar", "syrup", "honey", "sweetened", "caramel", "糖", "甜"}, Level: RiskMedium},
			"low_salt":  {Keywords: []string{"salt", "sodium", "soy sauce", "醬油", "酱油", "鹽", "盐"}, Level: RiskMedium},
			"low_fat":   {Keywords: []string{"oil", "fried", "cream", "butter", "lard", "油", "炸", "奶油"}, Level: RiskMedium},
		},
		Messages: Messages{
			Avoid:         "Avoid %s: contains %s.",
			Reconsider:    "Consider skipping %s: contains %s.",
			NoConcerns:    "No concerns detected for your preferences.",
			LexiconOnly:   "No concerns detected for your preferences. Common allergens present: %s.",
			AllergyReason: "Allergy match (%s): contains %s (%s)",
			DislikeReason: "Preference match (%s): contains %s (%s)",
			GoalReason:    "Health goal conflict (%s): contains %s (%s)",
			LexiconReason: "Common allergen (%s): contains %s (%s)",
		},
	}
	p.prepare()
	return p
}

// LoadPolicy 讀取 YAML 策略檔並覆寫預設值；path 為空時回傳預設策略
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if strings.TrimSpace(path) == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	p.prepare()
	return p, nil
}

// Validate 驗證策略
func (p *Policy) Validate() error {
	for name, level := range map[string]RiskLevel{
		"allergy_level":         p.AllergyLevel,
		"dislike_level":         p.DislikeLevel,
		"lexicon_level":         p.LexiconLevel,
		"lexicon_allergy_level": p.LexiconAllergyLevel,
	} {
		if !level.Valid() {
			return fmt.Errorf("%s is not a valid risk level", name)
		}
	}
	if p.MaxSuggestions <= 0 {
		return fmt.Errorf("max_suggestions must be positive")
	}
	for goal, rule := range p.HealthGoals {
		if !rule.Level.Valid() {
			return fmt.Errorf("health goal %q has no valid level", goal)
		}
	}
	for _, g := range p.Lexicon {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("lexicon group without name")
		}
	}
	for name, m := range map[string]struct {
		template string
		args     int
	}{
		"avoid":          {p.Messages.Avoid, 2},
		"reconsider":     {p.Messages.Reconsider, 2},
		"no_concerns":    {p.Messages.NoConcerns, 0},
		"lexicon_only":   {p.Messages.LexiconOnly, 1},
		"allergy_reason": {p.Messages.AllergyReason, 3},
		"dislike_reason": {p.Messages.DislikeReason, 3},
		"goal_reason":    {p.Messages.GoalReason, 3},
		"lexicon_reason": {p.Messages.LexiconReason, 3},
	} {
		if n := countVerbs(m.template); n != m.args {
			return fmt.Errorf("message %s needs %d %%s verbs, has %d", name, m.args, n)
		}
	}
	return nil
}

// countVerbs 計算模板中的格式動詞數量（%% 不計）
func countVerbs(template string) int {
	n := 0
	for i := 0; i < len(template); i++ {
		if template[i] != '%' {
			continue
		}
		if i+1 < len(template) && template[i+1] == '%' {
			i++
			continue
		}
		n++
	}
	return n
}

// prepare 建立正規化索引；目標名稱同樣正規化
func (p *Policy) prepare() {
	idx := lexiconIndex{byTerm: make(map[string]int)}
	for _, g := range p.Lexicon {
		ig := indexedGroup{name: normalizeTerm(g.Name)}
		seen := map[string]bool{}
		for _, t := range append([]string{g.Name}, g.Terms...) {
			n := normalizeTerm(t)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			ig.terms = append(ig.terms, n)
		}
		pos := len(idx.groups)
		idx.groups = append(idx.groups, ig)
		for _, t := range ig.terms {
			if _, exists := idx.byTerm[t]; !exists {
				idx.byTerm[t] = pos
			}
		}
	}
	for _, e := range p.LexiconExclusions {
		if n := normalizeTerm(e); n != "" {
			idx.exclusions = append(idx.exclusions, n)
		}
	}
	idx.prepped = true
	p.index = idx

	goals := make(map[string]GoalRule, len(p.HealthGoals))
	for name, rule := range p.HealthGoals {
		goals[CanonicalGoal(name)] = rule
	}
	p.HealthGoals = goals
}

// groupOf 回傳詞所屬的詞庫分組索引，找不到時嘗試去掉複數字尾
func (p *Policy) groupOf(normalized string) (int, bool) {
	if pos, ok := p.index.byTerm[normalized]; ok {
		return pos, true
	}
	for _, suffix := range []string{"es", "s"} {
		if stem, ok := strings.CutSuffix(normalized, suffix); ok && stem != "" {
			if pos, ok := p.index.byTerm[stem]; ok {
				return pos, true
			}
		}
	}
	return 0, false
}
