// Package engine 是工作流执行引擎：把计划定义实例化为运行时节点，按
// 拓扑顺序执行，处理条件分支、循环、并行与层级节点，文件/出站/人工
// 节点先过安全门。运行期状态是单写者的，并发校验请走 rules 包。
package engine
