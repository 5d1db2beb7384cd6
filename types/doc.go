// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
Package types 提供 lessonpipe 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、structured、diagnostics
等上层模块提供统一的错误与上下文契约。

# 核心类型

  - Error / ErrorCode：传输层结构化错误，含 HTTP 状态码、Retryable、Provider 标记
  - Failure / FailureKind：生成运行的终态失败（transport / extraction / validation）
  - Issue：单条 Schema 违规 {path, expected, actual}

# 主要能力

  - Context 传播：WithTraceID / WithRunID / WithLLMModel
  - 错误工具链：AsError / AsFailure / IsRetryable / GetErrorCode
  - 面向用户的统一提示：Failure.UserMessage
*/
package types
