// =============================================================================
// lessonpipe 命令行入口
// =============================================================================
// 使用方法:
//
//	lessonpipe run --prompt "..."                 # 单次生成，结果写到 stdout
//	lessonpipe run --schema story --prompt-file p.txt
//	lessonpipe batch --input prompts.jsonl        # 批量生成，每行一个结果
//	lessonpipe inspect --run-id <id>              # 查看诊断 trace
//	lessonpipe inspect --list 20                  # 列出最近的运行
//	lessonpipe migrate up                         # 运行数据库迁移
//	lessonpipe version                            # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/BaSui01/lessonpipe/internal/telemetry"
	"github.com/BaSui01/lessonpipe/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitFailure = 3 // 运行以 types.Failure 结束
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute 分发子命令并返回退出码
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "run":
		err = runGenerate(ctx, args[1:], stdout, stderr)
	case "batch":
		err = runBatch(ctx, args[1:], stdout, stderr)
	case "inspect":
		err = runInspect(ctx, args[1:], stdout, stderr)
	case "migrate":
		err = runMigrate(ctx, args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
	return exitCode(err, stderr)
}

// usageError 参数错误
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func newUsageError(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "Error: %s\n", ue.msg)
		return exitUsage
	}
	if f, ok := types.AsFailure(err); ok {
		// 终端用户只看到统一提示和诊断 id
		fmt.Fprintln(stderr, f.UserMessage())
		return exitFailure
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitError
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	version := Version
	if version == "dev" {
		version = telemetry.BuildVersion()
	}
	fmt.Fprintf(w, "lessonpipe %s\n", version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `lessonpipe - structured lesson generation from LLM output

Usage:
  lessonpipe <command> [options]

Commands:
  run       Generate one structured record
  batch     Generate records for every prompt in an input file
  inspect   Show diagnostic traces of past runs
  migrate   Database migration commands
  version   Show version information
  help      Show this help message

Common options:
  --config <path>   Path to configuration file (YAML)

Options for 'run':
  --schema <name>       Output schema: lesson, story (default: lesson)
  --prompt <text>       Prompt text
  --prompt-file <path>  Read the prompt from a file ("-" for stdin)
  --system <text>       Extra system instruction
  --model <name>        Override the configured model
  --out <path>          Write the record to a file instead of stdout

Options for 'batch':
  --input <path>        JSONL or YAML file of {prompt, system, schema, model}
  --concurrency <n>     Parallel runs (default: pipeline.max_concurrency)
  --out <path>          Write JSONL results to a file instead of stdout

Options for 'inspect':
  --run-id <id>         Print the trace of one run
  --list <n>            List the n most recent run ids
  --stage <name>        Only print entries of this stage
  --outcomes            Count stored runs by outcome (database backend)

Exit codes:
  0 success, 1 error, 2 usage error, 3 run failed (see diagnostic id)

Examples:
  lessonpipe run --prompt "Spanish greetings for beginners"
  lessonpipe batch --input prompts.jsonl --concurrency 8
  lessonpipe inspect --run-id 3f0c...
  lessonpipe migrate up --config /etc/lessonpipe/config.yaml`)
}
