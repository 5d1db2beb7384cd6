// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
# 概述

包 gemini 提供基于 google.golang.org/genai SDK 的 Gemini 生成器。

# 核心结构体

  - Provider：持有 genai.Client，实现 llm.Generator
  - Config：API Key、可选 BaseURL、默认模型与超时

# 行为

  - 请求总是设置 responseMimeType=application/json
  - GenerateRequest.Schema 非空时转换为 genai.Schema 作为 responseSchema
  - genai.APIError 通过 providers.MapHTTPError 归类，网络错误通过 retry.Classify 归类
  - 上游未返回 usageMetadata 时使用 tokenizer 估算
*/
package gemini
