// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
Package types 提供协作引擎的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 collaboration、conflict、
coordination、broadcast、negotiation 与 engine 提供统一的错误码与枚举。

# 核心类型

  - Error / ErrorCode: 结构化错误，含 HTTP 状态码、Retryable 与诊断字段
  - Priority: 目标与消息优先级
  - Severity: 冲突严重程度（Rank 可比较）
  - EscalationLevel: agent_level / team_level / system_level，Next 单调上升

# 错误工具链

  - AsError / GetErrorCode / IsErrorCode 沿 errors.As 链查找
  - IsInvalidInput 区分调用方输入错误与运行期错误
*/
package types
