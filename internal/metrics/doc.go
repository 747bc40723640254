// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集。

Collector 实现 metrics.Sink，引擎每完成一次操作都会推送事件，
按 operation/status 计数并记录耗时；冲突按类型计数，广播按收件人结果计数，
谈判记录轮次分布。HTTP 中间件通过 RecordHTTPRequest 记录请求，
WebSocket 会话数与数据库连接池状态以 Gauge 暴露。
*/
package metrics
