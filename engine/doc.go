// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
Package engine 提供多 Agent 协作引擎的统一入口。

Engine 组合协作规划、冲突解决、任务协调、系统广播与多轮谈判五类操作，
负责并发上限、操作级超时、追踪 span、结果持久化与指标汇总。

# 并发模型

FacilitateCollaboration 与 FacilitateNegotiation 共享一个容量为
max_concurrent_collaborations 的信号量。超出上限的调用阻塞等待，
调用方 context 先到期时返回 OPERATION_TIMEOUT。

# 错误约定

只有结构性输入错误会作为 error 返回；顾问失败被吸收，
谈判未达成一致、冲突升级等情况通过结果字段表达。
*/
package engine
