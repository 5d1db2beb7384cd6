// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库打开与连接池管理，供诊断追踪的
SQL 存储使用。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB/Ping/Stats/Close，
    以及 WithTransaction 与带指数退避的 WithTransactionRetry。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。

# 驱动

Open 根据 config.DatabaseConfig.Driver 选择方言：postgres（gorm.io/driver/postgres）、
mysql（gorm.io/driver/mysql）、sqlite（纯 Go 的 github.com/glebarez/sqlite）。
*/
package database
