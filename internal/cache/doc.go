// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
包 cache 封装 go-redis 客户端，为诊断追踪的 Redis 存储提供统一读写接口。

# 核心类型

  - Manager：持有 Redis 客户端，提供 Get/Set/Delete、GetJSON/SetJSON
    以及基于有序集合的最近运行索引 IndexAdd/IndexRecent。
  - Config：地址、密码、连接池、默认 TTL、TLS 开关与健康检查间隔。

# 主要能力

  - 可选 TLS：启用时使用 tlsutil.ClientConfigFor 生成加固配置。
  - 健康检查：后台定时 Ping，Close 时停止。
  - 错误语义：ErrCacheMiss / IsCacheMiss、ErrClosed。
*/
package cache
