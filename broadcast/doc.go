// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
Package broadcast 负责系统消息向多个 Agent 的可靠分发。

Dispatcher 为每个收件人独立执行投递、等待确认与指数退避重试，
单个收件人失败不会影响其他收件人。投递进度写入 Ledger（内存或
Redis），结束后汇总为 Result。

Deliverer 是可替换的传输层：Hub 为进程内信箱，KafkaDeliverer 为每个
收件人写入独立 topic，SessionBridge 将 Hub 信箱接到 Agent 的 WebSocket
会话。Agent 的确认与已读回执以 AckFrame 形式经 Kafka 或 WebSocket 回传。
*/
package broadcast
