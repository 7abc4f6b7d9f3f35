package pipeline

import (
	"regexp"
	"strings"
)

const maxSpeechRunes = 500

// 允许：字母、数字、下划线、空白、CJK 统一汉字和常用中英文标点
var disallowedSpeechChars = regexp.MustCompile(`[^\p{L}\p{N}_\s\x{4e00}-\x{9fff}，。！？：；"（）【】《》,.!?:;']`)

// SanitizeForSpeech 合并空白、去掉特殊符号并截断到 500 字
func SanitizeForSpeech(text string) string {
	// 先去符号再合并空白，避免符号两侧的空格残留成连续空格
	clean := disallowedSpeechChars.ReplaceAllString(text, "")
	clean = strings.Join(strings.Fields(clean), " ")

	runes := []rune(clean)
	if len(runes) > maxSpeechRunes {
		clean = string(runes[:maxSpeechRunes]) + "..."
	}
	return clean
}
