// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的流水线指标采集能力，覆盖
运行终态、状态耗时、LLM 调用、修复规则、校验违规与诊断写入。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
注册机制；NewCollectorWithRegistry 允许注入独立 Registry 以便测试和
多实例隔离。所有指标按 namespace 隔离，所有记录方法对 nil 接收者安全。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 向量指标。

# 主要能力

  - 运行指标：按 schema/outcome 统计运行次数与端到端耗时。
  - 状态指标：REQUESTING/EXTRACTING/NORMALIZING/VALIDATING 各状态耗时与转换计数。
  - LLM 指标：请求数、耗时、Token 用量、按错误码的重试次数。
  - 修复指标：提取策略命中、归一化规则应用、校验违规码。
  - 诊断指标：按存储后端的写入次数与耗时，ObserveFlush 满足 diagnostics.FlushObserver。
*/
package metrics
