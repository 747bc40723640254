// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 CollabEngine 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertErrorCode / AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockAdvisor（按请求类型脚本化响应、错误与延迟）、
    RecordingDeliverer（记录投递并按收件人注入失败）
  - testutil/fixtures: 协作目标、Agent 目录、冲突、复杂任务、系统消息与谈判样例

# 使用示例

	ctx := testutil.TestContext(t)
	adv := mocks.NewMockAdvisor().WithResponse(advisor.KindCollaborationStructure, map[string]any{"topology": "mesh"})
	eng, err := engine.New(cfg, engine.WithAdvisor(adv))
*/
package testutil
