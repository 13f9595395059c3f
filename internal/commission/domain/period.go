package domain

import (
	"time"
)

// DateLayout 结算周期日期格式
const DateLayout = "2006-01-02"

// Period 结算周期，按 UTC 日期计，两端包含
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod 截断到日期并校验 end >= start
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: truncateDate(start), End: truncateDate(end)}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// ParsePeriod 解析 YYYY-MM-DD 格式的周期
func ParsePeriod(start, end string) (Period, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Period{}, WrapError(KindValidation, err, "invalid period_start %q", start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Period{}, WrapError(KindValidation, err, "invalid period_end %q", end)
	}
	return NewPeriod(s, e)
}

// Validate period_end 不得早于 period_start
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return NewError(KindValidation, "period_end %s is before period_start %s",
			p.End.Format(DateLayout), p.Start.Format(DateLayout))
	}
	return nil
}

// Overlaps 两个闭区间是否相交
func (p Period) Overlaps(o Period) bool {
	return !p.End.Before(o.Start) && !o.End.Before(p.Start)
}

// Bounds 返回时间戳范围 [from, to)，to 为结束日次日零点
func (p Period) Bounds() (from, to time.Time) {
	return p.Start, p.End.AddDate(0, 0, 1)
}

// Contains 时间戳是否落在周期内
func (p Period) Contains(t time.Time) bool {
	from, to := p.Bounds()
	t = t.UTC()
	return !t.Before(from) && t.Before(to)
}

// Equal 起止日期都相同
func (p Period) Equal(o Period) bool {
	return p.Start.Equal(o.Start) && p.End.Equal(o.End)
}

func (p Period) String() string {
	return p.Start.Format(DateLayout) + ".." + p.End.Format(DateLayout)
}

// PreviousMonth 返回 now 所在月份的上一个自然月
func PreviousMonth(now time.Time) Period {
	now = now.UTC()
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start: firstOfThisMonth.AddDate(0, -1, 0),
		End:   firstOfThisMonth.AddDate(0, 0, -1),
	}
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
