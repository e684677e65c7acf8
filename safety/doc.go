// Package safety 提供工作流执行前的安全验证：文件访问白/黑名单、出站
// 请求的 SSRF 防护、以及人工交互提示词的注入检测。黑名单永远优先于
// 白名单；所有验证结果通过 Result 聚合，不抛出。
package safety
