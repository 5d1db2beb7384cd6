// Copyright (c) lessonpipe Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 lessonpipe 测试的共享工具和辅助函数。

# 概述

testutil 为各包测试提供统一的上下文、断言与数据辅助，避免重复实现相似
的测试基础设施。本包只依赖 types，可被任何包的测试引用。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 错误断言: AssertFailureKind / AssertErrorCode，按类别或错误码断言
    流水线与传输层错误
  - 异步断言: AssertEventuallyTrue / WaitFor / WaitForChannel
  - 数据工具: MustJSON / MustParseJSON / AssertJSONEqual

# 子包

  - testutil/mocks: MockGenerator，按脚本依次返回文本或错误并记录调用
  - testutil/fixtures: 模型原始输出样本（合规、围栏漂移、截断、纯文本、
    非法枚举）与 RawResponse 工厂
*/
package testutil
