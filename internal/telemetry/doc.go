// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 CollabEngine 提供集中式的 TracerProvider 和 MeterProvider 配置，
// 并通过 MetricSink 将引擎指标事件导出为 OTel 指标。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
