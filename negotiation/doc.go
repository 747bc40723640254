// Copyright (c) CollabEngine Authors.
// Licensed under the MIT License.

/*
Package negotiation 实现有界的多轮提案/反提案谈判。

每轮选出对所有参与者最公平的领先提案（最低满意度最高），其余 Agent 通过
Responder 表态：接受、反提案或拒绝。全部接受即达成一致；连续两轮无人改变
立场判定为僵局；超过轮次上限或墙钟时间判定为超时。僵局与超时总是要求升级，
并在顾问可用时附带备选方案。

本包是启发式议价协议，不提供分布式共识或拜占庭容错。
*/
package negotiation
