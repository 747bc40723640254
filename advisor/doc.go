// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
Package advisor 定义外部能力顾问接口及其受保护的调用客户端。

顾问接收只读的请求快照并返回非结构化建议；本包在边界处将响应转换为
StructureHint、ElaborationHint、AlternativesHint 等强类型结构，缺失或
格式错误的字段被静默忽略。

Client 为每次调用施加超时，失败后按指数退避重试一次，连续失败会触发
熔断。任何失败都不会向上传播，调用方据 ok 回退到确定性逻辑。
*/
package advisor
