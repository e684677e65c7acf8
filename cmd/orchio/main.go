// =============================================================================
// Orchio 主入口
// =============================================================================
// 工作流计划的校验与执行工具
//
// 使用方法:
//
//	orchio validate plan.yaml             # 校验计划文件
//	orchio run plan.yaml                  # 执行计划
//	orchio run plan.yaml --config c.yaml  # 指定配置文件
//	orchio version                        # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/orchio-ai/orchio/config"
	"github.com/orchio-ai/orchio/engine"
	"github.com/orchio-ai/orchio/event"
	"github.com/orchio-ai/orchio/internal/metrics"
	"github.com/orchio-ai/orchio/plan"
	"github.com/orchio-ai/orchio/rules"
	"github.com/orchio-ai/orchio/safety"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		runValidate(os.Args[2:])
	case "run":
		runExecute(os.Args[2:])
	case "version":
		fmt.Printf("orchio %s (%s)\n", version, commit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`orchio - workflow plan engine

Usage:
  orchio validate <plan.(json|yaml)>   校验计划文件
  orchio run <plan file> [--config f]  执行计划
  orchio version                       显示版本信息`)
}

func runValidate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "validate requires a plan file")
		os.Exit(1)
	}

	p, err := plan.LoadFromFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load plan: %v\n", err)
		os.Exit(1)
	}

	problems := p.Validate()

	// 结构校验之外再跑一遍规则引擎的图规则
	ruleEngine := rules.NewEngine(zap.NewNop())
	if err := ruleEngine.AddDecisionRule(rules.NewDagRuleBuilder().BuildDagValidationRule(100)); err != nil {
		fmt.Fprintf(os.Stderr, "setup rules: %v\n", err)
		os.Exit(1)
	}
	payload := validationPayload(p)
	if verdict := ruleEngine.ValidateDecision(payload, ""); !verdict.Valid {
		problems = append(problems, verdict.Errors...)
	}

	if len(problems) > 0 {
		fmt.Printf("plan %q is invalid:\n", p.Name)
		for _, problem := range problems {
			fmt.Printf("  - %s\n", problem)
		}
		os.Exit(1)
	}
	fmt.Printf("plan %q is valid: %d nodes, %d edges\n", p.Name, len(p.Nodes), len(p.Edges))
}

func runExecute(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "run requires a plan file")
		os.Exit(1)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.BuildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	p, err := plan.LoadFromFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load plan: %v\n", err)
		os.Exit(1)
	}

	guard := safety.NewGuard(logger)
	guard.ConfigureFileAccess(cfg.Safety.File)
	guard.ConfigureAPIAccess(cfg.Safety.API)

	bus := event.NewBus(logger)
	defer bus.Stop()

	agent := engine.NewAgent(engine.ExecutorSet{
		Python:   localStubExecutor("python"),
		LLM:      localStubExecutor("llm"),
		Database: localStubExecutor("database"),
		HTTP:     engine.NewHTTPExecutor(nil, cfg.Engine.HTTPRateQPS),
	}, guard, bus, logger)
	agent.SetRunTimeout(cfg.Engine.RunTimeout)
	agent.SetMetrics(metrics.NewCollector("orchio", nil, logger))

	result, err := agent.ExecutePlan(context.Background(), p, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run plan: %v\n", err)
		os.Exit(1)
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(encoded))

	if result["status"] != engine.RunStatusCompleted {
		os.Exit(1)
	}
}

func validationPayload(p *plan.WorkflowPlan) map[string]any {
	nodes := make([]map[string]any, 0, len(p.Nodes))
	for _, node := range p.Nodes {
		nodes = append(nodes, map[string]any{"node_id": node.Name})
	}
	edges := make([]map[string]any, 0, len(p.Edges))
	for _, edge := range p.Edges {
		edges = append(edges, map[string]any{"source": edge.SourceNode, "target": edge.TargetNode})
	}
	return map[string]any{
		"action_type": "create_workflow_plan",
		"nodes":       nodes,
		"edges":       edges,
	}
}
