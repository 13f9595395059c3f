package application

import "time"

// Outcome 单行处理结果
type Outcome string

const (
	OutcomeFixed    Outcome = "fixed"
	OutcomeWouldFix Outcome = "would_fix"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
	OutcomeKept     Outcome = "kept"
)

// ReportItem 批处理中的一行
type ReportItem struct {
	PaymentID       uint64  `json:"payment_id,omitempty"`
	ExchangeHouseID uint64  `json:"exchange_house_id"`
	Outcome         Outcome `json:"outcome"`
	Reason          string  `json:"reason,omitempty"`
}

// Report 批处理汇总，单行失败不会中断整次运行
type Report struct {
	Operation  string       `json:"operation"`
	DryRun     bool         `json:"dry_run"`
	Fixed      int          `json:"fixed"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Items      []ReportItem `json:"items"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

func newReport(operation string, dryRun bool, now time.Time) *Report {
	return &Report{Operation: operation, DryRun: dryRun, Items: []ReportItem{}, StartedAt: now}
}

func (r *Report) add(item ReportItem) {
	switch item.Outcome {
	case OutcomeFixed, OutcomeWouldFix:
		r.Fixed++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
	r.Items = append(r.Items, item)
}
