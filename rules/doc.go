// Package rules 实现决策校验规则引擎：载荷字段规则、工作流图结构规则与
// 带统计的执行门面。引擎执行所有规则而不短路，规则内部异常以校验失败
// 的形式呈现。
package rules
