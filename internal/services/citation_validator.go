package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ValidationResult 单次回答的校验结果，只在一次查询内存活
type ValidationResult struct {
	IsValid        bool     `json:"is_valid"`
	FilteredAnswer string   `json:"filtered_answer"`
	Warnings       []string `json:"warnings"`
	ValidCitations []int    `json:"valid_citations"`
	UncitedClaims  []string `json:"uncited_claims"`
}

// 超过这个数量的未引用断言，回答末尾追加核实提示
const maxUncitedClaims = 2

// disclaimerText 未引用断言过多时追加的固定提示
const disclaimerText = "\n\nNota: parte de esta información no pudo verificarse contra los documentos disponibles. " +
	"Te recomendamos confirmar los datos críticos con tu asesor."

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// 句子边界：终止标点后跟空白或文本结尾
var sentenceBoundary = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// 常见客套开头，不按事实断言处理
var boilerplatePrefixes = []string{
	"por favor", "please",
	"te sugiero", "le sugiero", "i suggest",
	"te recomiendo", "le recomiendo",
	"si tienes", "si necesitas", "si gustas", "no dudes",
	"con gusto", "estoy para",
}

var greetingPrefixes = []string{
	"hola", "buenos días", "buenas tardes", "buenas noches",
	"saludos", "gracias", "hello", "hi ", "thank",
}

// CitationValidator 机械校验LLM回答的引用是否落在提供的块内
type CitationValidator struct {
	detector ClaimDetector
	logger   *zap.Logger
}

// NewCitationValidator 创建引用校验器
func NewCitationValidator(detector ClaimDetector, logger *zap.Logger) *CitationValidator {
	if detector == nil {
		detector = NewHeuristicClaimDetector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CitationValidator{detector: detector, logger: logger}
}

// Validate 校验回答。
// 通过条件（不对称规则）：至少一个有效引用，或没有任何未引用断言。
// 这允许没有具体事实的反问通过，而满是断言却零引用的回答不通过。
func (v *CitationValidator) Validate(draft string, chunks []Chunk) *ValidationResult {
	result := &ValidationResult{FilteredAnswer: draft}

	if len(chunks) == 0 {
		result.Warnings = append(result.Warnings, "no source chunks were supplied for this answer")
		return result
	}

	valid, invalid := v.partitionCitations(draft, len(chunks))
	result.ValidCitations = valid

	for _, n := range invalid {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("citation [%d] is out of range (1-%d) and was removed", n, len(chunks)))
	}

	result.UncitedClaims = v.collectUncitedClaims(draft)
	if len(result.UncitedClaims) > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d sentence(s) contain factual content without citations", len(result.UncitedClaims)))
	}

	result.FilteredAnswer = stripCitations(draft, invalid)
	if len(result.UncitedClaims) > maxUncitedClaims {
		result.FilteredAnswer += disclaimerText
	}

	result.IsValid = len(result.ValidCitations) > 0 || len(result.UncitedClaims) == 0
	return result
}

// ValidateStrict 严格模式：未引用的句子必须有≥50%的有效词
// 逐字出现在块文本里，否则从最终回答中剔除。牺牲召回换精确。
func (v *CitationValidator) ValidateStrict(draft string, chunks []Chunk) *ValidationResult {
	result := &ValidationResult{FilteredAnswer: draft}

	if len(chunks) == 0 {
		result.Warnings = append(result.Warnings, "no source chunks were supplied for this answer")
		return result
	}

	valid, invalid := v.partitionCitations(draft, len(chunks))
	result.ValidCitations = valid
	for _, n := range invalid {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("citation [%d] is out of range (1-%d) and was removed", n, len(chunks)))
	}

	chunkWords := make(map[string]bool)
	for _, chunk := range chunks {
		for _, w := range significantWords(chunk.Text) {
			chunkWords[w] = true
		}
	}

	stripped := stripCitations(draft, invalid)
	var kept []string
	for _, sentence := range splitSentences(stripped) {
		if citationPattern.MatchString(sentence) {
			kept = append(kept, sentence)
			continue
		}
		if overlapRatio(sentence, chunkWords) >= 0.5 {
			kept = append(kept, sentence)
			continue
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("removed unsupported sentence: %s", sentence))
		v.logger.Info("Strict validation removed unsupported sentence",
			zap.String("sentence", sentence))
	}

	filtered := strings.Join(kept, " ")

	// 剔除后重算未引用断言
	for _, sentence := range splitSentences(filtered) {
		if v.skipSentence(sentence) {
			continue
		}
		if v.detector.LooksLikeFactualClaim(sentence) {
			result.UncitedClaims = append(result.UncitedClaims, sentence)
		}
	}
	if len(result.UncitedClaims) > maxUncitedClaims {
		filtered += disclaimerText
	}

	result.FilteredAnswer = filtered
	result.IsValid = len(result.ValidCitations) > 0 || len(result.UncitedClaims) == 0
	return result
}

// partitionCitations 提取去重后的引用编号并按范围分为有效/无效
func (v *CitationValidator) partitionCitations(draft string, chunkCount int) (valid []int, invalid []int) {
	seen := make(map[int]bool)
	for _, m := range citationPattern.FindAllStringSubmatch(draft, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		if n >= 1 && n <= chunkCount {
			valid = append(valid, n)
		} else {
			invalid = append(invalid, n)
		}
	}
	sort.Ints(valid)
	sort.Ints(invalid)
	return valid, invalid
}

// collectUncitedClaims 找出没带引用却像事实断言的句子
func (v *CitationValidator) collectUncitedClaims(draft string) []string {
	var claims []string
	for _, sentence := range splitSentences(draft) {
		if v.skipSentence(sentence) {
			continue
		}
		if v.detector.LooksLikeFactualClaim(sentence) {
			claims = append(claims, sentence)
		}
	}
	return claims
}

// skipSentence 疑问句、问候、短句、客套开头和已带引用的句子不参与断言检查
func (v *CitationValidator) skipSentence(sentence string) bool {
	trimmed := strings.TrimSpace(sentence)
	if len([]rune(trimmed)) < 20 {
		return true
	}
	if strings.HasSuffix(trimmed, "?") || strings.HasPrefix(trimmed, "¿") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, prefix := range greetingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, prefix := range boilerplatePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return citationPattern.MatchString(trimmed)
}

// stripCitations 从文本里去掉无效引用标记
func stripCitations(text string, invalid []int) string {
	for _, n := range invalid {
		text = strings.ReplaceAll(text, fmt.Sprintf("[%d]", n), "")
	}
	return text
}

// splitSentences 按终止标点切句，保留标点
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// 重叠率计算忽略的停用词（3字符以上的才需要列出，更短的直接丢弃）
var overlapStopwords = map[string]bool{
	"los": true, "las": true, "una": true, "uno": true, "unos": true, "unas": true,
	"del": true, "que": true, "con": true, "por": true, "para": true, "como": true,
	"este": true, "esta": true, "estos": true, "estas": true, "ese": true, "esa": true,
	"son": true, "está": true, "tiene": true, "hay": true,
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"are": true, "was": true, "has": true, "have": true, "its": true, "from": true,
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// significantWords 小写分词，丢弃短词和停用词
func significantWords(text string) []string {
	var words []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len([]rune(w)) < 3 || overlapStopwords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

// overlapRatio 句子的有效词有多大比例逐字出现在块文本里
func overlapRatio(sentence string, chunkWords map[string]bool) float64 {
	words := significantWords(citationPattern.ReplaceAllString(sentence, ""))
	if len(words) == 0 {
		// 没有可核实的词，放行
		return 1
	}
	hits := 0
	for _, w := range words {
		if chunkWords[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
