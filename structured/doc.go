// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
# 概述

包 structured 把生成模型返回的自由文本转换为经过校验的强类型记录。

模型输出在信封结构、字段命名和值类型上并不可靠。本包按固定顺序执行
提取、归一化和校验，修复"几乎正确"的输出，但绝不静默接受错误数据。

# 核心类型

  - Node：未类型化的中间文档，Null | Bool | Number | String | Array | Object 的标签联合
  - Schema / Property：声明式输出契约，附带别名、信封名、主键等漂移提示
  - Extractor：按 direct → balanced → fence 顺序从原始文本中提取 JSON
  - Normalizer / Rule：有序、幂等的修复规则集合
  - Validator：收集全部违规项，成功时产出 Record
  - Pipeline：状态机编排，REQUESTING → EXTRACTING → NORMALIZING → VALIDATING → SUCCEEDED | FAILED

# 典型用法

	p := structured.NewPipeline(gen, structured.WithLogger(logger), structured.WithRecorder(recorder))
	res, err := p.Run(ctx, &structured.Request{Prompt: prompt, Schema: lesson.Schema()})
	if f, ok := types.AsFailure(err); ok {
		// f.Kind: transport | extraction | validation
		return f.UserMessage()
	}
	var l lesson.Lesson
	_ = res.Record.Decode(&l)

RunBatch 以受限并发执行多个互不相关的请求，结果按请求顺序返回。

# 并发

Schema 与 Pipeline 在多个运行之间只读共享。Node 树和诊断会话只属于单个运行，不做并发保护。
*/
package structured
