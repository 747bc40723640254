// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

// Package api 定义 CollabEngine HTTP API 的请求与响应结构。
//
// 各操作的请求体直接复用领域类型（conflict.AgentConflict、
// coordination.ComplexTask、broadcast.SystemMessage、
// negotiation.AgentNegotiation），本包只补充需要额外包装的请求。
//
// # Authentication
//
// 启用认证时，请求需携带 X-API-Key 头或 Authorization: Bearer <jwt>。
// 健康检查与 /metrics 无需认证。
//
// # Routes
//
//	POST /api/v1/agents                      注册 Agent 能力
//	GET  /api/v1/agents                      列出 Agent 能力
//	GET  /api/v1/agents/{id}/session         Agent WebSocket 会话
//	POST /api/v1/collaborations              协作规划
//	POST /api/v1/conflicts                   冲突解决
//	POST /api/v1/conflicts/outcomes          反馈冲突解决效果
//	POST /api/v1/tasks                       复杂任务协调
//	POST /api/v1/broadcasts                  系统广播
//	GET  /api/v1/broadcasts/{id}             广播投递台账
//	POST /api/v1/broadcasts/{id}/ack         确认或已读回执
//	POST /api/v1/negotiations                多轮谈判
//	GET  /api/v1/metrics                     指标快照
//	GET  /api/v1/records/{kind}              按类别列出结果
//	GET  /api/v1/records/{kind}/{id}         查询单个结果
package api
