// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
Package main 提供 CollabEngine 服务端程序入口。

# 概述

cmd/collabengine 是协作引擎的可执行入口，提供 HTTP API 服务、
数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件与
环境变量加载、结构化日志（zap）、Prometheus 指标和 OpenTelemetry。

# 子命令

  - serve    启动 API 与 Metrics 双端口服务
  - migrate  结果存储的版本化迁移（up/down/steps/force/status/version）
  - health   探测运行中服务的 /health
  - version  打印构建信息

# 中间件链

Recovery → RequestID → SecurityHeaders → RequestLogger → OTelTracing →
MetricsMiddleware → RateLimiter → Auth（API Key 或 JWT）。
健康检查路径跳过认证。

# 外部依赖

数据库、Redis、Kafka 均为可选：未启用时分别退化为内存存储、
内存台账和进程内 Hub。日志级别可通过配置文件热更新，其余变更需重启。
*/
package main
