package analysis

import (
	"fmt"
	"strings"
)

// field 菜單項目中可供比對的欄位（食材或菜名）
type field struct {
	display    string
	normalized string
	isName     bool
}

// prefTerm 正規化後的偏好詞
type prefTerm struct {
	display string
	needles []string // 第一個為使用者輸入的詞，其後為詞庫同義詞
	concern string   // 去重用：詞庫分類名稱或正規化後的詞本身
}

// Finding 命中及其所屬菜名
type Finding struct {
	RiskHit
	Item string
}

// Hits 取出命中列表
func Hits(findings []Finding) []RiskHit {
	hits := make([]RiskHit, len(findings))
	for i, f := range findings {
		hits[i] = f.RiskHit
	}
	return hits
}

// itemHits 單一菜單項目的命中，依 concern 與命中詞去重
type itemHits struct {
	hits []RiskHit
	pos  map[string]int
}

func newItemHits() *itemHits {
	return &itemHits{pos: make(map[string]int)}
}

// add 加入命中；concern 或命中詞相同即視為同一命中，只保留最高等級，位置維持第一次出現的位置
func (h *itemHits) add(concern string, hit RiskHit) {
	keys := []string{concern, normalizeTerm(hit.Term)}
	var (
		i  int
		ok bool
	)
	for _, k := range keys {
		if i, ok = h.pos[k]; ok {
			break
		}
	}
	if !ok {
		i = len(h.hits)
		h.hits = append(h.hits, hit)
	} else if hit.Level.Rank() > h.hits[i].Level.Rank() {
		h.hits[i] = hit
	}
	for _, k := range keys {
		if _, exists := h.pos[k]; !exists && k != "" {
			h.pos[k] = i
		}
	}
}

// Match 比對所有菜單項目與偏好、健康目標及內建過敏原詞庫
//
// 命中依菜單項目順序輸出；同一項目內依 過敏 → 不喜歡 → 健康目標 → 詞庫 排序。
func Match(items []MenuItem, prefs UserPreferences, p *Policy) []Finding {
	allergies := p.expandTerms(prefs.Allergies)
	dislikes := p.expandTerms(prefs.Dislikes)
	goals := p.goalRules(prefs.HealthGoals)

	findings := []Finding{}
	for _, item := range items {
		fields := itemFields(item)
		h := newItemHits()

		for _, t := range allergies {
			if m, ok := firstMatch(t.needles, fields, 1); ok {
				h.add(t.concern, RiskHit{
					Term:   m.term(t.display),
					Reason: fmt.Sprintf(p.Messages.AllergyReason, t.display, m.what, item.Name),
					Level:  p.AllergyLevel,
				})
			}
		}

		for _, t := range dislikes {
			if m, ok := firstMatch(t.needles, fields, 1); ok {
				h.add(t.concern, RiskHit{
					Term:   m.term(t.display),
					Reason: fmt.Sprintf(p.Messages.DislikeReason, t.display, m.what, item.Name),
					Level:  p.DislikeLevel,
				})
			}
		}

		for _, g := range goals {
			for _, kw := range g.rule.Keywords {
				needle := normalizeTerm(kw)
				if m, ok := firstMatch([]string{needle}, fields, 0); ok {
					h.add(needle, RiskHit{
						Term:   m.term(strings.TrimSpace(kw)),
						Reason: fmt.Sprintf(p.Messages.GoalReason, g.name, m.what, item.Name),
						Level:  g.rule.Level,
					})
				}
			}
		}

		p.matchLexicon(fields, item, allergies, h)

		for _, hit := range h.hits {
			findings = append(findings, Finding{RiskHit: hit, Item: item.Name})
		}
	}
	return findings
}

// matchLexicon 比對內建過敏原詞庫；使用者對該分類過敏時升級為 LexiconAllergyLevel
func (p *Policy) matchLexicon(fields []field, item MenuItem, allergies []prefTerm, h *itemHits) {
	lexFields := p.stripExclusions(fields)
	for _, g := range p.index.groups {
		m, ok := firstMatch(g.terms, lexFields, 0)
		if !ok {
			continue
		}

		level := p.LexiconLevel
		if allergicTo(allergies, g.name, m.needle) {
			level = p.LexiconAllergyLevel
		}
		h.add(g.name, RiskHit{
			Term:   m.term(m.needle),
			Reason: fmt.Sprintf(p.Messages.LexiconReason, g.name, m.what, item.Name),
			Level:  level,
		})
	}
}

// stripExclusions 移除不應視為過敏原的片語（如 eggplant）
func (p *Policy) stripExclusions(fields []field) []field {
	if len(p.index.exclusions) == 0 {
		return fields
	}
	out := make([]field, len(fields))
	for i, f := range fields {
		n := f.normalized
		for _, e := range p.index.exclusions {
			n = strings.ReplaceAll(n, e, " ")
		}
		f.normalized = strings.Join(strings.Fields(n), " ")
		out[i] = f
	}
	return out
}

func allergicTo(allergies []prefTerm, group, term string) bool {
	for _, a := range allergies {
		if a.concern == group {
			return true
		}
		for _, n := range a.needles {
			if vocabMatches(n, term) || vocabMatches(term, n) {
				return true
			}
		}
	}
	return false
}

// expandTerms 正規化偏好詞；屬於詞庫分類的詞擴展為整組同義詞
func (p *Policy) expandTerms(terms []string) []prefTerm {
	out := make([]prefTerm, 0, len(terms))
	seen := map[string]bool{}
	for _, raw := range terms {
		display := strings.TrimSpace(raw)
		n := normalizeTerm(display)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true

		t := prefTerm{display: display, needles: []string{n}, concern: n}
		if pos, ok := p.groupOf(n); ok {
			g := p.index.groups[pos]
			t.concern = g.name
			for _, syn := range g.terms {
				if syn != n {
					t.needles = append(t.needles, syn)
				}
			}
		}
		out = append(out, t)
	}
	return out
}

type namedGoal struct {
	name string
	rule GoalRule
}

// goalRules 取得使用者啟用且策略認得的健康目標
func (p *Policy) goalRules(goals []string) []namedGoal {
	out := make([]namedGoal, 0, len(goals))
	seen := map[string]bool{}
	for _, raw := range goals {
		name := CanonicalGoal(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if rule, ok := p.HealthGoals[name]; ok {
			out = append(out, namedGoal{name: name, rule: rule})
		}
	}
	return out
}

// itemFields 食材在前、菜名在後，讓理由優先引用具體食材
func itemFields(item MenuItem) []field {
	fields := make([]field, 0, len(item.Ingredients)+1)
	for _, ing := range item.Ingredients {
		if n := normalizeTerm(ing); n != "" {
			fields = append(fields, field{display: strings.TrimSpace(ing), normalized: n})
		}
	}
	if n := normalizeTerm(item.Name); n != "" {
		fields = append(fields, field{display: strings.TrimSpace(item.Name), normalized: n, isName: true})
	}
	return fields
}

// match 一次命中
type match struct {
	index    int    // 命中的 needle 位置；0 為使用者輸入的詞
	needle   string // 命中的正規化詞
	what     string // 理由中引用的內容：食材原文，命中菜名時為命中的詞
	field    string // 命中的欄位原文
	inputHas bool   // 欄位中確實出現 needle（而非欄位整個落在 needle 之中）
}

// term 命中詞：欄位含使用者的詞時保留原拼寫，含同義詞時用同義詞，
// 否則（欄位整個落在詞之中）改用欄位原文，確保命中詞必定出現在輸入中
func (m match) term(display string) string {
	switch {
	case !m.inputHas:
		return m.field
	case m.index == 0:
		return display
	default:
		return m.needle
	}
}

// firstMatch 找出第一個命中的欄位
//
// needles[vocabFrom:] 屬於內建詞彙，以 vocabMatches 比對。
func firstMatch(needles []string, fields []field, vocabFrom int) (match, bool) {
	for _, f := range fields {
		for i, needle := range needles {
			matches := termMatches
			if i >= vocabFrom {
				matches = vocabMatches
			}
			if !matches(needle, f.normalized) {
				continue
			}
			m := match{
				index:    i,
				needle:   needle,
				what:     f.display,
				field:    f.display,
				inputHas: strings.Contains(f.normalized, needle),
			}
			if f.isName && m.inputHas {
				m.what = needle
			}
			return m, true
		}
	}
	return match{}, false
}
