// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
包 diagnostics 为每次生成运行记录可按运行 ID 检索的诊断 trace。

# 概述

Recorder 为每次运行创建一个 Session。Session 是追加式的：每条记录在
写入时被快照为字符串并按 MaxPayloadBytes 截断（截断点落在 UTF-8 字符
边界），运行到达终态时 Flush 一次，之后的记录全部忽略。写入使用
与调用方取消无关的独立上下文，只受 FlushTimeout 约束；后端错误只写日志
并计入指标，永远不会改变运行结果。

# 存储后端

  - FileStore：<dir>/<run-id>.json，临时文件 + rename 原子写入
  - RedisStore：基于 internal/cache，JSON 值 + TTL，有序集合维护最近运行
  - GormStore：diagnostic_traces 表（postgres / mysql / sqlite），按 run_id upsert
  - MongoStore：集合文档，_id 为 run id，expires_at TTL 索引负责清理
  - LogStore：每个 trace 输出一条结构化 zap 日志
  - MemoryStore：进程内存，测试与单次 CLI 运行
  - MultiStore：并发扇出写入，读取时返回第一个命中的后端

实现 Loader / Lister 的后端支持 lessonpipe inspect 读取与列出 trace。
Open 按 config.DiagnosticsConfig.Backends 组装后端。
*/
package diagnostics
