// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
Package store 保存引擎每次操作产出的不可变结果记录。

记录以 (Kind, ID) 唯一标识，Payload 为结果的 JSON 编码。
同一记录只能写入一次，重复写入返回 ALREADY_EXISTS。

  - MemoryStore：进程内实现，用于开发与测试。
  - GormStore：基于 GORM 的持久化实现，表结构由 internal/migration 管理，
    也可在启动时 AutoMigrate。
*/
package store
