package common

import "gorm.io/gorm"

// ByStatus 按状态过滤，空状态不加条件
// 使用方法：db.Scopes(common.ByStatus("pending")).Find(&redemptions)
func ByStatus(status string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if status == "" {
			return db
		}
		return db.Where("status = ?", status)
	}
}
