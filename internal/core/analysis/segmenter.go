package analysis

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// dashSeparators 菜名與食材之間的破折號分隔（前後需有空白，避免切開 stir-fry）
var dashSeparators = []string{" - ", " – ", " — "}

// bulletCutset 行首行尾要去除的項目符號
const bulletCutset = " \t-•*·"

// Segment 將 OCR 或手動輸入的文字切分為菜單項目
func Segment(text string) []MenuItem {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	items := []MenuItem{}
	for _, raw := range strings.Split(text, "\n") {
		line := strings.Trim(raw, bulletCutset)
		if line == "" {
			continue
		}
		items = append(items, segmentLine(line))
	}
	return items
}

// segmentLine 解析單行 "<菜名>: <食材>, <食材>"
func segmentLine(line string) MenuItem {
	name, rest, found := splitNameAndIngredients(line)
	if !found {
		return MenuItem{Name: line, Ingredients: []string{}}
	}

	ingredients := splitIngredients(rest)
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(rest)
	}
	return MenuItem{Name: name, Ingredients: ingredients}
}

func splitNameAndIngredients(line string) (string, string, bool) {
	if name, rest, ok := strings.Cut(line, ":"); ok {
		return name, rest, true
	}

	best := -1
	sepLen := 0
	for _, sep := range dashSeparators {
		if i := strings.Index(line, sep); i >= 0 && (best < 0 || i < best) {
			best = i
			sepLen = len(sep)
		}
	}
	if best < 0 {
		return "", "", false
	}
	return line[:best], line[best+sepLen:], true
}

// splitIngredients 依逗號、頓號、分號與斜線切分食材，保留原始大小寫
func splitIngredients(rest string) []string {
	fields := strings.FieldsFunc(rest, func(r rune) bool {
		switch r {
		case ',', '、', ';', '/':
			return true
		}
		return false
	})

	ingredients := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, " \t.")
		if f != "" {
			ingredients = append(ingredients, f)
		}
	}
	return ingredients
}
