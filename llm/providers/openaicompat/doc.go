// Package openaicompat 提供面向 OpenAI 兼容 chat completions 接口的生成器，
// 通过 response_format 请求 JSON 输出。
package openaicompat
