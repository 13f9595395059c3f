package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/commissionhub/internal/settings/domain"
	"github.com/wyfcoding/commissionhub/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingPO system_settings 表
type SettingPO struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Key       string    `gorm:"column:key;type:varchar(128);uniqueIndex;not null"`
	Value     string    `gorm:"column:value;type:text"`
	Type      string    `gorm:"column:type;type:varchar(16);not null;default:string"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (SettingPO) TableName() string { return "system_settings" }

func (po *SettingPO) ToDomain() *domain.Setting {
	return &domain.Setting{
		Key:       po.Key,
		Value:     po.Value,
		Type:      domain.ValueType(po.Type),
		UpdatedAt: po.UpdatedAt,
	}
}

type settingStore struct {
	db *gorm.DB
}

func NewSettingStore(gormDB *gorm.DB) domain.Store {
	return &settingStore{db: gormDB}
}

func (s *settingStore) Get(ctx context.Context, key string) (*domain.Setting, error) {
	var po SettingPO
	err := db.Conn(ctx, s.db).Where("`key` = ?", key).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return po.ToDomain(), nil
}

// Save 按 key upsert
func (s *settingStore) Save(ctx context.Context, setting *domain.Setting) error {
	po := &SettingPO{
		Key:       setting.Key,
		Value:     setting.Value,
		Type:      string(setting.Type),
		UpdatedAt: setting.UpdatedAt,
	}
	err := db.Conn(ctx, s.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "type", "updated_at"}),
	}).Create(po).Error
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

func (s *settingStore) List(ctx context.Context) ([]*domain.Setting, error) {
	var pos []SettingPO
	if err := db.Conn(ctx, s.db).Order("`key` ASC").Find(&pos).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Setting, 0, len(pos))
	for i := range pos {
		out = append(out, pos[i].ToDomain())
	}
	return out, nil
}
