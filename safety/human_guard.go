package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// maxHumanPromptLength 人工交互提示的长度上限（字符）
const maxHumanPromptLength = 4000

// injectionPhrases 固定关键短语列表，大小写不敏感的子串匹配
var injectionPhrases = []string{
	"ignore previous instructions",
	"bypass safety",
	"disable filter",
	"override system",
	"disregard all",
}

// injectionPatterns 在短语之外补充的正则形态检测
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all|what)\s*(you\s+)?(know|learned|were\s+told)?`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s`),
	regexp.MustCompile(`(?im)^\s*system\s*:\s*`),
	regexp.MustCompile(`(?i)忽略(之前|上面|先前)的(指令|提示|规则)`),
}

// validateHumanInteraction 检查人工交互提示：非空、长度上限、提示注入
// 关键短语与敏感内容。
func validateHumanInteraction(nodeID, prompt string, expectedInputs []string, metadata map[string]any) *Result {
	result := NewResult()

	if strings.TrimSpace(prompt) == "" {
		result.AddError(fmt.Sprintf("node %s: human interaction prompt is required", nodeID))
		return result
	}

	if promptLen := len([]rune(prompt)); promptLen > maxHumanPromptLength {
		result.AddError(fmt.Sprintf("node %s: prompt length %d exceeds limit %d", nodeID, promptLen, maxHumanPromptLength))
		result.WithCorrection(map[string]any{"max_prompt_length": maxHumanPromptLength})
		return result
	}

	lower := strings.ToLower(prompt)
	for _, phrase := range injectionPhrases {
		if strings.Contains(lower, phrase) {
			result.AddError(fmt.Sprintf("node %s: prompt contains injection phrase %q", nodeID, phrase))
		}
	}
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(prompt) {
			result.AddError(fmt.Sprintf("node %s: prompt matches injection pattern %q", nodeID, pattern.String()))
		}
	}

	for _, finding := range scanSensitiveContent(prompt) {
		result.AddError(fmt.Sprintf("node %s: %s", nodeID, finding))
	}

	return result
}
