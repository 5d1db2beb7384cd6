// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
包 llm 定义生成调用的统一契约。

# 概述

流水线只依赖 [Generator] 接口：给定提示词与模型参数，返回模型原始文本
[RawResponse]。具体的服务商实现位于 llm/providers 子包，重试策略位于
llm/retry，token 估算位于 llm/tokenizer。

# 核心类型

  - [GenerateRequest]：提示词、系统指令、可选的 JSON Schema 与 [Params]
  - [RawResponse]：模型返回文本及调用元数据（模型、结束原因、用量、耗时、尝试次数）
  - [RateLimitedGenerator]：基于 golang.org/x/time/rate 的令牌桶限流包装
*/
package llm
