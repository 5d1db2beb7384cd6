// Package config 提供 lessonpipe 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（LESSONPIPE_*）的顺序叠加，
// 覆盖 LLM 调用、重试策略、流水线、诊断存储、日志、遥测与指标。
// YAML 中的 ${VAR} 在解析前按环境变量展开；未知字段直接报错。
package config
