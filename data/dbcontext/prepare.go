package dbcontext

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"gochen-data/data/orm"
	"gochen-data/domain/entity"
)

var uuidType = reflect.TypeFor[uuid.UUID]()

// PrepareInsert 插入前的公共处理：
// 自动主键为零值时，字符串主键生成 UUID 字符串，uuid.UUID 主键生成新 UUID；
// 整数自动主键返回 storeGenerated=true，由存储分配。
// 实现 IAuditable 的实体补齐为零值的创建/修改时间。
func PrepareInsert(meta *orm.ModelMeta, e any, now time.Time) (storeGenerated bool, err error) {
	pk := meta.PrimaryKey()
	key, err := meta.Key(e)
	if err != nil {
		return false, err
	}
	if pk.AutoIncrement && orm.IsZeroKey(key) {
		switch {
		case pk.Type == uuidType:
			err = meta.SetValue(e, pk.Column, uuid.New())
		case pk.Type.Kind() == reflect.String:
			err = meta.SetValue(e, pk.Column, uuid.NewString())
		default:
			storeGenerated = true
		}
		if err != nil {
			return false, err
		}
	}

	if a, ok := e.(entity.IAuditable); ok {
		if a.GetCreatedAt().IsZero() {
			a.SetCreatedInfo(a.GetCreatedBy(), now)
		}
		if a.GetModifiedAt().IsZero() {
			a.SetModifiedInfo(a.GetModifiedBy(), now)
		}
	}
	return storeGenerated, nil
}
