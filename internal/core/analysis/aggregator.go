package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// AggregateRisk 整體風險為所有命中中最高的等級；無命中時為 LOW
func AggregateRisk(hits []RiskHit) RiskLevel {
	level := RiskLow
	for _, h := range hits {
		level = MaxLevel(level, h.Level)
	}
	return level
}

// suggestionGroup 相同 (等級, 詞) 的命中合併為一條建議
type suggestionGroup struct {
	level RiskLevel
	term  string
	items []string
	order int
}

// BuildSuggestions 依命中產生建議
//
// 每個 HIGH/MEDIUM 的 (等級, 詞) 組合產生一條建議，列出觸發的菜名；
// 依等級由高到低排序（同等級依輸入順序），最多 MaxSuggestions 條。
func BuildSuggestions(findings []Finding, p *Policy) []string {
	if len(findings) == 0 {
		return []string{p.Messages.NoConcerns}
	}

	groups := []*suggestionGroup{}
	byKey := map[string]*suggestionGroup{}
	var lowTerms []string
	lowSeen := map[string]bool{}

	for _, h := range findings {
		if h.Level.Rank() < RiskMedium.Rank() {
			key := normalizeTerm(h.Term)
			if !lowSeen[key] {
				lowSeen[key] = true
				lowTerms = append(lowTerms, h.Term)
			}
			continue
		}

		key := string(h.Level) + "|" + normalizeTerm(h.Term)
		g, ok := byKey[key]
		if !ok {
			g = &suggestionGroup{level: h.Level, term: h.Term, order: len(groups)}
			byKey[key] = g
			groups = append(groups, g)
		}
		if h.Item != "" && !containsString(g.items, h.Item) {
			g.items = append(g.items, h.Item)
		}
	}

	if len(groups) == 0 {
		return []string{fmt.Sprintf(p.Messages.LexiconOnly, strings.Join(lowTerms, ", "))}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].level.Rank() > groups[j].level.Rank()
	})

	limit := p.MaxSuggestions
	if limit <= 0 || limit > len(groups) {
		limit = len(groups)
	}

	suggestions := make([]string, 0, limit)
	for _, g := range groups[:limit] {
		template := p.Messages.Reconsider
		if g.level == RiskHigh {
			template = p.Messages.Avoid
		}
		suggestions = append(suggestions, fmt.Sprintf(template, strings.Join(g.items, ", "), g.term))
	}
	return suggestions
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
