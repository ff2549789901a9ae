package main

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// 推理返回的 percent 参数形态不固定：50、"50"、"50%"、"fifty"、"seventy five"

var digitsRe = regexp.MustCompile(`-?\d{1,3}`)

var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// percentArg 解析 set_volume 的 percent 参数并钳到 0~100
func percentArg(args map[string]any) (int, error) {
	raw, ok := args["percent"]
	if !ok {
		return 0, fmt.Errorf("missing percent argument")
	}
	switch v := raw.(type) {
	case float64:
		return clampPercent(int(math.Round(v))), nil
	case int:
		return clampPercent(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("percent %q: %w", v, err)
		}
		return clampPercent(int(math.Round(f))), nil
	case string:
		n, ok := parseNumberToken(v)
		if !ok {
			return 0, fmt.Errorf("percent %q is not a number", v)
		}
		return clampPercent(n), nil
	default:
		return 0, fmt.Errorf("percent has unsupported type %T", raw)
	}
}

func parseNumberToken(token string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(token))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "%"), " percent")
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if m := digitsRe.FindString(s); m != "" {
		n, err := strconv.Atoi(m)
		return n, err == nil
	}
	return parseEnglishNumber(s)
}

// parseEnglishNumber 支持 0~100 的英文读法，如 "seventy five"、"one hundred"
func parseEnglishNumber(s string) (int, bool) {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '-' })
	total, seen := 0, false
	for _, w := range words {
		if w == "and" || w == "a" {
			continue
		}
		if w == "hundred" {
			if total == 0 {
				total = 1
			}
			total *= 100
			seen = true
			continue
		}
		n, ok := numberWords[w]
		if !ok {
			return 0, false
		}
		total += n
		seen = true
	}
	return total, seen
}

func clampPercent(n int) int { return clampInt(n, 0, 100) }
