package mysql

import (
	"errors"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"gorm.io/gorm"
)

const (
	errLockWaitTimeout uint16 = 1205
	errDeadlock        uint16 = 1213
	errDuplicateEntry  uint16 = 1062
)

// translate 把驱动错误映射为领域错误
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.WrapError(domain.KindNotFound, err, "%s not found", what)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.WrapError(domain.KindConcurrencyConflict, err, "%s was written concurrently", what)
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errLockWaitTimeout, errDeadlock:
			return domain.WrapError(domain.KindConcurrencyConflict, err, "lock contention on %s", what)
		case errDuplicateEntry:
			return domain.WrapError(domain.KindConcurrencyConflict, err, "%s was written concurrently", what)
		}
	}
	return err
}
