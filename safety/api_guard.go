package safety

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// APIAccessConfig 出站请求校验配置
type APIAccessConfig struct {
	// AllowedSchemes 默认 {http, https}
	AllowedSchemes []string `yaml:"allowed_schemes" json:"allowed_schemes"`
	// WhitelistDomains 为空时不做白名单限制
	WhitelistDomains []string `yaml:"whitelist_domains" json:"whitelist_domains"`
	// BlacklistDomains 黑名单优先
	BlacklistDomains []string `yaml:"blacklist_domains" json:"blacklist_domains"`
}

// DefaultAPIAccessConfig 返回默认配置
func DefaultAPIAccessConfig() APIAccessConfig {
	return APIAccessConfig{
		AllowedSchemes: []string{"http", "https"},
	}
}

// loopbackLiterals SSRF 字面量匹配，解析 IP 之前先行拦截
var loopbackLiterals = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
	"0.0.0.0":   true,
}

// validateAPIRequest 检查 URL 形态、scheme、域名黑白名单与 SSRF 目标。
func validateAPIRequest(cfg APIAccessConfig, nodeID, rawURL, method string, headers map[string]string, body any) *Result {
	result := NewResult()

	if rawURL == "" {
		result.AddError(fmt.Sprintf("node %s: url is required", nodeID))
		return result
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		result.AddError(fmt.Sprintf("node %s: invalid url %q: %v", nodeID, rawURL, err))
		return result
	}

	schemes := cfg.AllowedSchemes
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	schemeOK := false
	for _, s := range schemes {
		if strings.EqualFold(parsed.Scheme, s) {
			schemeOK = true
			break
		}
	}
	if !schemeOK {
		result.AddError(fmt.Sprintf("node %s: scheme %q is not allowed", nodeID, parsed.Scheme))
		result.WithCorrection(map[string]any{"allowed_schemes": schemes})
		return result
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		result.AddError(fmt.Sprintf("node %s: url %q has no resolvable hostname", nodeID, rawURL))
		return result
	}

	for _, blocked := range cfg.BlacklistDomains {
		if domainMatch(host, blocked) {
			result.AddError(fmt.Sprintf("node %s: domain %q is blacklisted", nodeID, host))
			return result
		}
	}

	if len(cfg.WhitelistDomains) > 0 {
		allowed := false
		for _, domain := range cfg.WhitelistDomains {
			if domainMatch(host, domain) {
				allowed = true
				break
			}
		}
		if !allowed {
			result.AddError(fmt.Sprintf("node %s: domain %q is not whitelisted", nodeID, host))
			result.WithCorrection(map[string]any{"whitelist_domains": cfg.WhitelistDomains})
			return result
		}
	}

	// SSRF 防护：字面量匹配 + IP 段检查
	if loopbackLiterals[host] {
		result.AddError(fmt.Sprintf("node %s: request to loopback host %q is blocked", nodeID, host))
		return result
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			result.AddError(fmt.Sprintf("node %s: request to private or loopback address %q is blocked", nodeID, host))
			return result
		}
	}

	return result
}

// domainMatch reports whether host equals the domain or is one of its
// subdomains.
func domainMatch(host, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
