// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
包 migration 基于 golang-migrate 管理诊断追踪表 diagnostic_traces 的 Schema，
支持 PostgreSQL、MySQL 与 SQLite。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在 migrations/<dialect>/ 下，
表结构与 diagnostics.GormStore 的模型保持一致。开发环境可以改用
GORM AutoMigrate（database.auto_migrate），生产环境使用 lessonpipe migrate。

# 核心类型

  - Migrator / DefaultMigrator：Up/Down/Steps/Force/Version/Status/Info/Close
  - CLI：lessonpipe migrate 子命令的终端输出
  - NewMigratorFromDatabaseConfig / NewMigratorFromURL：由配置或显式 URL 构建迁移器

变更型操作接受 ctx：取消时向 golang-migrate 发送 GracefulStop，当前迁移文件
执行完后停止并返回 ctx 错误。Config.Logger 非空时迁移日志经 zap 输出。
*/
package migration
