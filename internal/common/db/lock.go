package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate 给查询追加行级锁。
// sqlite（测试库）不支持 SELECT ... FOR UPDATE，此时原样返回，
// 事务仍然串行执行，语义在测试下不受影响。
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
