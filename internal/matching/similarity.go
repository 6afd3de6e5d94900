package matching

import (
	"strings"
	"unicode"
)

// stopWords 过滤匹配时的常见英文噪声词。
var stopWords = map[string]bool{
	"and": true, "the": true, "for": true, "with": true, "you": true,
	"are": true, "have": true, "will": true, "this": true, "that": true,
	"from": true, "our": true, "your": true, "their": true, "they": true,
	"work": true, "team": true, "role": true, "job": true, "join": true,
	"about": true, "which": true, "what": true, "who": true, "how": true,
	"can": true, "not": true, "but": true, "all": true, "also": true,
	"more": true, "than": true, "into": true, "has": true, "its": true,
	"use": true, "using": true, "used": true, "well": true, "such": true,
}

// KeywordOverlap 计算两段文本关键词集合的 Jaccard 相似度，返回 [0,1]。
// 任一侧没有关键词时返回 0。
func KeywordOverlap(a, b string) float64 {
	kwA := tokenize(a)
	kwB := tokenize(b)
	if len(kwA) == 0 || len(kwB) == 0 {
		return 0
	}

	inter := 0
	for kw := range kwA {
		if kwB[kw] {
			inter++
		}
	}
	union := len(kwA) + len(kwB) - inter
	return float64(inter) / float64(union)
}

// tokenize 将文本切分为小写关键词集合（长度 ≥3，跳过噪声词）。
// + # . 视为词内字符，保留 c++、c#、node.js 这类技术词。
func tokenize(text string) map[string]bool {
	kw := make(map[string]bool)
	var word strings.Builder
	flush := func() {
		w := strings.TrimRight(word.String(), ".")
		word.Reset()
		if len([]rune(w)) >= 3 && !stopWords[w] {
			kw[w] = true
		}
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.' {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return kw
}
