package domain

import (
	"sort"
	"time"
)

// StatusPriority 重复请求去重时的状态优先级，数值越大越优先保留
func StatusPriority(s PaymentStatus) int {
	switch s {
	case PaymentStatusPaymentInfoSent:
		return 3
	case PaymentStatusApproved:
		return 2
	case PaymentStatusPending:
		return 1
	default:
		return 0
	}
}

// DuplicateKey 去重分组键
type DuplicateKey struct {
	ExchangeHouseID uint64
	Start           time.Time
	End             time.Time
}

// KeyOf 请求所属的分组
func KeyOf(p *CommissionPayment) DuplicateKey {
	return DuplicateKey{ExchangeHouseID: p.ExchangeHouseID, Start: p.Period.Start, End: p.Period.End}
}

// GroupDuplicates 按 (交易所, 周期) 分组，只返回多于一行的组，组顺序稳定
func GroupDuplicates(rows []*CommissionPayment) [][]*CommissionPayment {
	index := make(map[DuplicateKey]int)
	var groups [][]*CommissionPayment
	for _, row := range rows {
		k := KeyOf(row)
		i, ok := index[k]
		if !ok {
			index[k] = len(groups)
			groups = append(groups, []*CommissionPayment{row})
			continue
		}
		groups[i] = append(groups[i], row)
	}

	dups := groups[:0]
	for _, g := range groups {
		if len(g) > 1 {
			dups = append(dups, g)
		}
	}
	return dups
}

// RankDuplicates 按状态优先级、updated_at 倒序、id 倒序排序，
// 返回保留的一行与需要删除的其余行
func RankDuplicates(group []*CommissionPayment) (keep *CommissionPayment, drop []*CommissionPayment) {
	if len(group) == 0 {
		return nil, nil
	}
	ranked := make([]*CommissionPayment, len(group))
	copy(ranked, group)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := StatusPriority(ranked[i].Status), StatusPriority(ranked[j].Status)
		if pi != pj {
			return pi > pj
		}
		if !ranked[i].UpdatedAt.Equal(ranked[j].UpdatedAt) {
			return ranked[i].UpdatedAt.After(ranked[j].UpdatedAt)
		}
		return ranked[i].ID > ranked[j].ID
	})
	return ranked[0], ranked[1:]
}
