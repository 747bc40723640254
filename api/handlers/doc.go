// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 CollabEngine HTTP API 的请求处理器实现。

# 核心类型

  - EngineHandler: 协作、冲突、协调、广播、谈判等引擎操作
  - SessionHandler: Agent WebSocket 会话，接收广播并回传确认
  - HealthHandler: 服务健康检查（/health, /healthz, /ready）
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - HealthCheck: 可插拔健康检查接口

# 错误映射

处理器返回的错误统一经 WriteError 输出。*types.Error 携带的 HTTPStatus
直接作为响应状态码，其他错误一律视为 INTERNAL_ERROR 返回 500。
请求体限制为 1 MB 且拒绝未知字段。
*/
package handlers
