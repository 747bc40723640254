// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

// Package config 提供 CollabEngine 的配置管理功能。
//
// 配置按默认值、YAML 文件、环境变量的顺序叠加，
// 环境变量按分组解析（如 COLLAB_ENGINE_CONSENSUS_THRESHOLD）。
// Watcher 轮询配置文件并在变更后重新加载，日志级别可在运行时生效。
package config
