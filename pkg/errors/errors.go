package errors

import "errors"

// ErrStaleState 条件更新未命中：记录已不存在或状态已被其他操作修改
var ErrStaleState = errors.New("数据已被其他操作修改，请刷新后重试")
