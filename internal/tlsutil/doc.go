// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

// Package tlsutil 为出站连接（Redis、Kafka、健康探测）提供统一的 TLS 客户端配置：
// TLS 1.2+，仅 AEAD 密码套件。
package tlsutil
