package raft

import "errors"

// 错误分类。协议层面的拒绝（ok=false 的响应）不是错误，不会出现在这里。
var (
	// ErrInvalidArgument 表示传入的索引、切片范围或日志条目不合法。
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOutOfRange 表示日志索引不在当前存活区间内。
	ErrOutOfRange = errors.New("index out of range")
	// ErrInvalidState 表示在当前角色或状态下不允许执行该操作。
	ErrInvalidState = errors.New("invalid state")
)
