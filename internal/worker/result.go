package worker

// 阶段名称
const (
	PhaseScheduled = "scheduled"
	PhaseQueued    = "queued"
	PhaseRetry     = "retry"
)

// PhaseResult 单个阶段的执行结果
//
// Processed = Succeeded + Failed（实际处理过的条目数）。
// Skipped 为未处理即放弃的条目：发布阶段乐观锁失败（已被其他实例抢走）
// 或本次运行时间预算耗尽未开始处理的条目。
type PhaseResult struct {
	Name       string `json:"name"`
	Processed  int    `json:"processed"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	DurationMs int64  `json:"duration_ms"`
}

// Result 一次 worker 运行的汇总结果
type Result struct {
	TotalProcessed  int           `json:"total_processed"`
	TotalSucceeded  int           `json:"total_succeeded"`
	TotalFailed     int           `json:"total_failed"`
	TotalDurationMs int64         `json:"total_duration_ms"`
	Phases          []PhaseResult `json:"phases"`
}

func (r *Result) addPhase(p PhaseResult) {
	r.TotalProcessed += p.Processed
	r.TotalSucceeded += p.Succeeded
	r.TotalFailed += p.Failed
	r.Phases = append(r.Phases, p)
}
