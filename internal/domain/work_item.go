package domain

import "time"

// WorkItem 是转换池的最小工作单元：一个输入文件与它的目标输出路径。
// 构造后不可变；由 supervisor 创建，被且仅被一个 worker 消费一次。
type WorkItem struct {
	InputPath  string
	OutputPath string
}

// OutputMeta 描述一次成功转换的产物（由转换例程返回）。
type OutputMeta struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int64  `json:"bytes"`
}

// ConversionResult 由 worker 在处理完一个 WorkItem 后创建，之后不再修改。
//
// 约束：OK=false 时 ErrorMsg 必须非空（否则失败不可解释）；
// OK=true 时 Meta 必须有效（宽高为目标尺寸）。
type ConversionResult struct {
	Item WorkItem
	OK   bool

	ErrorCode string
	ErrorMsg  string

	Meta OutputMeta
	Dur  time.Duration
}
