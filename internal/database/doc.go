// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库连接池管理，支持按配置选择驱动、
健康检查、统计信息采集与事务重试。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，可由 config.DatabaseConfig 派生。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 驱动选择：Open/Dialector 支持 postgres、mysql 与纯 Go 的 sqlite。
  - 健康检查：后台定时 PingContext 探活，Close 时退出。
  - 事务管理：WithTransactionRetry 复用 internal/retry 的指数退避，
    仅对死锁、序列化失败、连接中断等瞬时错误重试。
*/
package database
