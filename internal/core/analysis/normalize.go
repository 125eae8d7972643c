package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// normalizeTerm 正規化比對用字串：NFKC、小寫、去頭尾空白、合併內部空白
func normalizeTerm(s string) string {
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CanonicalGoal 將健康目標名稱統一為 low_sugar 形式
func CanonicalGoal(goal string) string {
	g := normalizeTerm(goal)
	g = strings.NewReplacer(" ", "_", "-", "_").Replace(g)
	return g
}

// termMatches 判斷偏好詞 term 是否命中欄位 field（兩者皆已正規化）
//
// field 包含 term（子字串），或 term 以完整單字形式包含 field。
func termMatches(term, field string) bool {
	if term == "" || field == "" {
		return false
	}
	if strings.Contains(field, term) {
		return true
	}
	return containsWord(term, field)
}

// vocabMatches 內建詞彙（詞庫、健康目標關鍵字、同義詞）的比對
//
// 拉丁字母詞必須從單字開頭命中（eggs 命中 egg，veggie 不命中）；
// 中日文沒有分詞空白，直接以子字串比對。
func vocabMatches(term, field string) bool {
	if term == "" || field == "" {
		return false
	}
	if hasCJK(term) {
		return strings.Contains(field, term)
	}
	return containsWordPrefix(field, term) || containsWord(term, field)
}

func hasCJK(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return true
		}
	}
	return false
}

// containsWordPrefix 判斷 s 中是否有以 prefix 開頭的單字
func containsWordPrefix(s, prefix string) bool {
	for offset := 0; offset <= len(s)-len(prefix); {
		i := strings.Index(s[offset:], prefix)
		if i < 0 {
			return false
		}
		start := offset + i
		if isBoundaryBefore(s, start) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		offset = start + size
	}
	return false
}

// containsWord 判斷 s 是否以完整單字形式包含 word
func containsWord(s, word string) bool {
	for offset := 0; offset <= len(s)-len(word); {
		i := strings.Index(s[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)
		if isBoundaryBefore(s, start) && isBoundaryAfter(s, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		offset = start + size
	}
	return false
}

func isBoundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func isBoundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// validText 文字必須是合法 UTF-8 且不含 NUL（排除二進位內容）
func validText(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}
