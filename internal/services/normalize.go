package services

import "strings"

// NormalizeQuery 规范化问题文本：小写、折叠空白、去首尾空格。
// 语义缓存和反馈学习必须使用同一套规范化，否则评分会折算到错误的条目上。
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// QualityDelta 把1-5星评分映射到[-1, 1]的质量增量
func QualityDelta(rating int) float64 {
	return float64(rating-3) / 2
}
