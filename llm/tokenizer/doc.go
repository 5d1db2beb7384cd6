// Package tokenizer 提供 token 计数，用于上游未返回用量时估算请求与响应的 token 数。
// OpenAI 系列模型使用 tiktoken 精确计数，其余模型使用对假名/汉字敏感的字符估算器。
package tokenizer
