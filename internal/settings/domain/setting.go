// Package domain 平台设置：键/值/类型三元组
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KeyPlatformCommissionRate = "platform_commission_rate"
	KeyMaintenanceMode        = "maintenance_mode"
)

var (
	ErrNotFound     = errors.New("setting not found")
	ErrInvalidValue = errors.New("invalid setting value")
)

// ValueType 设置值类型
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeInteger ValueType = "integer"
	TypeDecimal ValueType = "decimal"
	TypeBoolean ValueType = "boolean"
	TypeJSON    ValueType = "json"
)

// Check 校验 value 能按类型解析
func (t ValueType) Check(value string) error {
	var err error
	switch t {
	case TypeString:
	case TypeInteger:
		_, err = strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	case TypeDecimal:
		_, err = decimal.NewFromString(strings.TrimSpace(value))
	case TypeBoolean:
		_, err = ParseBool(value)
	case TypeJSON:
		if !json.Valid([]byte(value)) {
			err = errors.New("malformed json")
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidValue, t)
	}
	if err != nil {
		return fmt.Errorf("%w: %q is not a valid %s: %v", ErrInvalidValue, value, t, err)
	}
	return nil
}

// ParseBool 兼容 1/0、yes/no、on/off
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("cannot parse %q as boolean", value)
}

// Setting 一条平台设置
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Type      ValueType `json:"type"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store 设置的持久化来源
type Store interface {
	Get(ctx context.Context, key string) (*Setting, error)
	Save(ctx context.Context, s *Setting) error
	List(ctx context.Context) ([]*Setting, error)
}

// Cache 读穿透缓存
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Add 仅在 key 不存在时写入，返回是否写入
	Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}
