// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
Package main 提供 lessonpipe 命令行程序入口。

# 概述

cmd/lessonpipe 把配置、日志、指标、遥测、诊断存储与结构化流水线装配在
一起，提供 run、batch、inspect、migrate、version 子命令。结果写到 stdout，
日志统一写到 stderr。

# 装配顺序

  - telemetry.Init 初始化 OTel（未启用时为 noop）
  - 独立的 Prometheus Registry 与 metrics.Collector
  - diagnostics.Open 按 diagnostics.backends 打开存储，Recorder 以
    Collector 作为 FlushObserver
  - 提供者（gemini / openai 兼容）外层依次包装限流与分类重试，
    重试回调写入 retries 指标
  - metrics.listen_addr 非空时启动运维端点（/metrics、/healthz、/readyz）

# 退出码

0 成功，1 一般错误，2 参数错误，3 运行以失败结束（stderr 只输出统一提示与诊断 id）。

# 构建注入

Version、BuildTime、GitCommit 通过 ldflags 设置。
*/
package main
