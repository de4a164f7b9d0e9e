package services

import (
	"strings"
	"unicode"
)

// ClaimDetector 判断一个句子是否像事实性断言。
// 作为可插拔策略，换启发式规则时不动校验器的控制流。
type ClaimDetector interface {
	LooksLikeFactualClaim(sentence string) bool
}

// 地产领域词：价格、面积单位、户型关键词。
// 命中任意一个就认为句子携带可核实的事实信息。
var domainTerms = []string{
	// 价格
	"precio", "price", "costo", "cost", "mxn", "usd", "pesos", "$",
	"enganche", "mensualidad", "financiamiento",
	// 面积单位
	"m2", "m²", "metros", "hectárea", "hectarea", "sqft", "superficie",
	// 户型/单元
	"lote", "casa", "departamento", "terreno", "unidad", "torre",
	"recámara", "recamara", "baño", "bano", "bedroom", "bathroom",
}

// heuristicClaimDetector 默认启发式实现
type heuristicClaimDetector struct{}

// NewHeuristicClaimDetector 创建默认的断言检测器
func NewHeuristicClaimDetector() ClaimDetector {
	return &heuristicClaimDetector{}
}

// LooksLikeFactualClaim 含数字、句中大写词或领域词的句子视为事实断言
func (d *heuristicClaimDetector) LooksLikeFactualClaim(sentence string) bool {
	if containsDigit(sentence) {
		return true
	}

	lower := strings.ToLower(sentence)
	for _, term := range domainTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}

	return containsInnerCapitalized(sentence)
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// containsInnerCapitalized 句首之外出现大写开头的词，
// 通常是专有名词（开发项目名、地名）
func containsInnerCapitalized(sentence string) bool {
	words := strings.Fields(sentence)
	for i, word := range words {
		if i == 0 {
			continue
		}
		runes := []rune(strings.TrimLeft(word, "¿¡\"'(["))
		if len(runes) > 0 && unicode.IsUpper(runes[0]) {
			return true
		}
	}
	return false
}
