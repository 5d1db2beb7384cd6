// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
包 server 提供 lessonpipe 的运维 HTTP 端点与服务器生命周期管理。

# 核心类型

  - Manager：封装 net/http.Server，提供非阻塞 Start、带超时的
    Shutdown 与异步错误通道 Errors。Addr 在启动后返回实际绑定地址，
    便于 ":0" 随机端口场景。
  - Handler：挂载 /metrics（promhttp，基于传入的 Gatherer）、
    /healthz（存活探针）与 /readyz（按名称执行就绪检查，总超时可配）。

# 拉取式指标

OnScrape 注册的回调在每次 /metrics 抓取前执行，cmd/lessonpipe 用它
把 GORM 连接池统计写入 db_connections_* 指标。
*/
package server
