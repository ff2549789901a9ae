package main

import (
	"regexp"
	"strings"
)

// Category 第一阶段粗分类，只判断指令类型不解析参数
type Category int

const (
	CategoryNone Category = iota // 开放问答
	CategoryVolume
	CategoryTime
	CategoryDate
	CategoryCamera
	CategoryShutdown
)

func (c Category) String() string {
	switch c {
	case CategoryVolume:
		return "volume"
	case CategoryTime:
		return "time"
	case CategoryDate:
		return "date"
	case CategoryCamera:
		return "camera"
	case CategoryShutdown:
		return "shutdown"
	default:
		return "none"
	}
}

// 按顺序匹配，第一个命中的生效
var categoryPatterns = []struct {
	cat Category
	re  *regexp.Regexp
}{
	{CategoryVolume, regexp.MustCompile(`(?:set|change|adjust|make|turn|increase|decrease|raise|lower)\s+(?:the\s+)?volume`)},
	{CategoryTime, regexp.MustCompile(`(?:what|tell).*time|time.*(?:is\s+it)`)},
	{CategoryDate, regexp.MustCompile(`(?:what|tell).*(?:date|day)|(?:date|day).*(?:is\s+it|today)`)},
	{CategoryCamera, regexp.MustCompile(`(?:take|capture|use)\s+(?:a\s+)?(?:picture|photo|image|camera)|(?:what.*see|describe.*see)`)},
	{CategoryShutdown, regexp.MustCompile(`(?:shut\s*down|power\s+off|turn\s+off)(?:\s+(?:system|robot))?`)},
}

func DetectCategory(text string) Category {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return CategoryNone
	}
	for _, p := range categoryPatterns {
		if p.re.MatchString(lower) {
			return p.cat
		}
	}
	return CategoryNone
}

// needsInference 需要第二阶段推理解析参数的类别
func (c Category) needsInference() bool {
	switch c {
	case CategoryVolume, CategoryShutdown:
		return true
	case CategoryNone, CategoryTime, CategoryDate, CategoryCamera:
		return false
	}
	return false
}
