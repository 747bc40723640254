// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
Package server 提供 HTTP 服务器生命周期管理，支持非阻塞启动与优雅关闭。

Manager 封装 net/http.Server：Start 在后台 goroutine 中服务，
Run 阻塞直到 context 取消或服务异常退出，随后在 ShutdownTimeout
内排空请求。CollabEngine 的 API 服务与 Prometheus 指标服务各使用一个 Manager。
*/
package server
