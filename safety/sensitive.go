package safety

import (
	"fmt"
	"regexp"
)

// sensitivePattern 敏感内容启发式模式
type sensitivePattern struct {
	pattern     *regexp.Regexp
	description string
}

// getSensitivePatterns 返回文件写入与人工交互共用的敏感内容模式。
// 对应凭证、私钥与银行卡类信息的常见形态。
func getSensitivePatterns() []sensitivePattern {
	return []sensitivePattern{
		{
			pattern:     regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[=:]\s*['"]?[A-Za-z0-9_\-]{16,}`),
			description: "API key assignment",
		},
		{
			pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?[^\s'"]{6,}`),
			description: "password assignment",
		},
		{
			pattern:     regexp.MustCompile(`(?i)(secret|token)\s*[=:]\s*['"]?[A-Za-z0-9_\-\.]{16,}`),
			description: "secret or token assignment",
		},
		{
			pattern:     regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |DSA )?PRIVATE KEY-----`),
			description: "private key block",
		},
		{
			pattern:     regexp.MustCompile(`(?i)aws_access_key_id|aws_secret_access_key`),
			description: "AWS credential",
		},
		{
			pattern:     regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
			description: "possible card number",
		},
	}
}

// scanSensitiveContent 对内容执行敏感信息扫描，返回发现的问题描述。
func scanSensitiveContent(content string) []string {
	var findings []string
	for _, sp := range getSensitivePatterns() {
		if sp.pattern.MatchString(content) {
			findings = append(findings, fmt.Sprintf("content contains sensitive data: %s", sp.description))
		}
	}
	return findings
}
