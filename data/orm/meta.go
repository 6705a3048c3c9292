package orm

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/iancoleman/strcase"
)

// AssociationKind 表示关联类型。
type AssociationKind string

const (
	AssociationBelongsTo AssociationKind = "belongs_to"
	AssociationHasOne    AssociationKind = "has_one"
	AssociationHasMany   AssociationKind = "has_many"
)

// AssociationMeta 描述模型关联元信息。
//
// HasMany/HasOne 的 ForeignKey 位于目标表，BelongsTo 的 ForeignKey 位于本表；
// ReferenceKey 为另一侧被引用的列，留空表示主键。
type AssociationMeta struct {
	Name         string
	Kind         AssociationKind
	Target       reflect.Type
	ForeignKey   string
	ReferenceKey string

	index   []int
	elemPtr bool
}

// FieldMeta 描述列映射的字段元信息。
type FieldMeta struct {
	Name          string
	Column        string
	Type          reflect.Type
	PrimaryKey    bool
	AutoIncrement bool

	index []int
}

// ModelMeta 描述模型级别元信息，由 MetaOf 从结构体标签解析并缓存。
//
// 支持的标签：
//
//	db:"column"            列名，缺省为字段名的 snake_case；db:"-" 忽略字段
//	orm:"pk,auto"          主键 / 自动生成
//	orm:"has_many,fk=x"    关联，另有 has_one、belongs_to，可选 ref=列
//	gorm:"column:x;primaryKey;autoIncrement"
type ModelMeta struct {
	Type         reflect.Type
	Table        string
	Fields       []FieldMeta
	Associations []AssociationMeta

	pk       int
	byColumn map[string]int
}

var (
	metaMu    sync.RWMutex
	metaCache = make(map[reflect.Type]*ModelMeta)
)

// MetaOf 返回类型（结构体或其指针）的模型元信息。
func MetaOf(t reflect.Type) (*ModelMeta, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrInvalidModel)
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidModel, t)
	}

	metaMu.RLock()
	m, ok := metaCache[t]
	metaMu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := buildMeta(t)
	if err != nil {
		return nil, err
	}

	metaMu.Lock()
	if existing, ok := metaCache[t]; ok {
		m = existing
	} else {
		metaCache[t] = m
	}
	metaMu.Unlock()
	return m, nil
}

// MetaFor 泛型便捷形式。
func MetaFor[T any]() (*ModelMeta, error) {
	return MetaOf(reflect.TypeFor[T]())
}

func buildMeta(t reflect.Type) (*ModelMeta, error) {
	m := &ModelMeta{
		Type:     t,
		pk:       -1,
		byColumn: make(map[string]int),
	}

	var walk func(reflect.Type, []int) error
	walk = func(cur reflect.Type, prefix []int) error {
		for i := 0; i < cur.NumField(); i++ {
			f := cur.Field(i)
			// 未导出的内嵌结构体仍需展开，其导出字段可写
			if !f.IsExported() && !(f.Anonymous && f.Type.Kind() == reflect.Struct) {
				continue
			}
			index := append(append([]int(nil), prefix...), i)
			opts := parseOrmTag(f.Tag.Get("orm"))
			if opts.skip || f.Tag.Get("db") == "-" {
				continue
			}

			if opts.kind != "" && f.IsExported() {
				assoc, err := buildAssociation(t, f, index, opts)
				if err != nil {
					return err
				}
				m.Associations = append(m.Associations, assoc)
				continue
			}

			// 内嵌结构体（例如 entity.Entity[K]）递归展开
			if f.Anonymous && f.Type.Kind() == reflect.Struct && !isScalarDBField(f.Type) {
				if err := walk(f.Type, index); err != nil {
					return err
				}
				continue
			}
			if !f.IsExported() || !isScalarDBField(f.Type) {
				continue
			}

			col, pk, auto := parseColumnTag(f)
			pk = pk || opts.pk
			auto = auto || opts.auto
			if col == "" {
				col = strcase.ToSnake(f.Name)
			}
			if !IsSafeIdentifier(col) {
				return fmt.Errorf("%w: column %q on %s", ErrUnsafeIdentifier, col, t)
			}

			fm := FieldMeta{
				Name:          f.Name,
				Column:        col,
				Type:          f.Type,
				PrimaryKey:    pk,
				AutoIncrement: auto,
				index:         index,
			}
			// 同名列以最外层定义为准
			if pos, dup := m.byColumn[col]; dup {
				if len(m.Fields[pos].index) <= len(index) {
					continue
				}
				m.Fields[pos] = fm
				continue
			}
			m.byColumn[col] = len(m.Fields)
			m.Fields = append(m.Fields, fm)
		}
		return nil
	}
	if err := walk(t, nil); err != nil {
		return nil, err
	}

	for i := range m.Fields {
		if m.Fields[i].PrimaryKey {
			m.pk = i
			break
		}
	}
	if m.pk < 0 {
		if pos, ok := m.byColumn["id"]; ok {
			m.pk = pos
			m.Fields[pos].PrimaryKey = true
			m.Fields[pos].AutoIncrement = isIntegerKind(m.Fields[pos].Type)
		}
	}
	if m.pk < 0 {
		return nil, fmt.Errorf("%w: %s has no primary key", ErrInvalidModel, t)
	}

	m.Table = tableNameOf(t)
	if !IsSafeIdentifier(m.Table) {
		return nil, fmt.Errorf("%w: table %q", ErrUnsafeIdentifier, m.Table)
	}
	return m, nil
}

func buildAssociation(owner reflect.Type, f reflect.StructField, index []int, opts ormTag) (AssociationMeta, error) {
	a := AssociationMeta{
		Name:         f.Name,
		Kind:         opts.kind,
		ForeignKey:   opts.fk,
		ReferenceKey: opts.ref,
		index:        index,
	}

	ft := f.Type
	if a.Kind == AssociationHasMany {
		if ft.Kind() != reflect.Slice {
			return a, fmt.Errorf("%w: %s.%s has_many requires a slice", ErrInvalidModel, owner, f.Name)
		}
		ft = ft.Elem()
	}
	if ft.Kind() == reflect.Ptr {
		a.elemPtr = true
		ft = ft.Elem()
	}
	if ft.Kind() != reflect.Struct {
		return a, fmt.Errorf("%w: %s.%s association target must be a struct", ErrInvalidModel, owner, f.Name)
	}
	a.Target = ft

	if a.ForeignKey == "" {
		switch a.Kind {
		case AssociationBelongsTo:
			a.ForeignKey = strcase.ToSnake(f.Name) + "_id"
		default:
			a.ForeignKey = strcase.ToSnake(owner.Name()) + "_id"
		}
	}
	if !IsSafeIdentifier(a.ForeignKey) || (a.ReferenceKey != "" && !IsSafeIdentifier(a.ReferenceKey)) {
		return a, fmt.Errorf("%w: association %s.%s", ErrUnsafeIdentifier, owner, f.Name)
	}
	return a, nil
}

type ormTag struct {
	skip bool
	pk   bool
	auto bool
	kind AssociationKind
	fk   string
	ref  string
}

func parseOrmTag(tag string) ormTag {
	var o ormTag
	if tag == "" {
		return o
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		key, val, _ := strings.Cut(part, "=")
		switch strings.ToLower(key) {
		case "-":
			o.skip = true
		case "pk", "primary_key":
			o.pk = true
		case "auto", "autoincrement":
			o.auto = true
		case string(AssociationHasMany), string(AssociationHasOne), string(AssociationBelongsTo):
			o.kind = AssociationKind(strings.ToLower(key))
		case "fk":
			o.fk = val
		case "ref":
			o.ref = val
		}
	}
	return o
}

func parseColumnTag(f reflect.StructField) (column string, primaryKey, autoIncrement bool) {
	if gormTag := f.Tag.Get("gorm"); gormTag != "" {
		for _, part := range strings.Split(gormTag, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, "column:") {
				column = strings.TrimPrefix(part, "column:")
			}
			if strings.EqualFold(part, "primaryKey") || strings.EqualFold(part, "primary_key") {
				primaryKey = true
			}
			if strings.EqualFold(part, "autoIncrement") {
				autoIncrement = true
			}
		}
	}
	if column == "" {
		if dbTag := f.Tag.Get("db"); dbTag != "" {
			column = strings.Split(dbTag, ",")[0]
		}
	}
	return column, primaryKey, autoIncrement
}

var (
	timeType    = reflect.TypeFor[time.Time]()
	valuerType  = reflect.TypeFor[driver.Valuer]()
	scannerType = reflect.TypeFor[sql.Scanner]()
)

func isScalarDBField(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType || t.Implements(valuerType) || reflect.PointerTo(t).Implements(scannerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	default:
		return false
	}
}

func isIntegerKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// tableNameOf 优先使用 TableName()（值或指针接收者），否则为类型名的 snake_case。
func tableNameOf(t reflect.Type) string {
	if tn, ok := reflect.New(t).Interface().(interface{ TableName() string }); ok {
		if name := tn.TableName(); name != "" {
			return name
		}
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return strcase.ToSnake(name)
}

// PrimaryKey 返回主键字段。
func (m *ModelMeta) PrimaryKey() *FieldMeta {
	return &m.Fields[m.pk]
}

// Field 按列名查找字段。
func (m *ModelMeta) Field(column string) (*FieldMeta, bool) {
	pos, ok := m.byColumn[column]
	if !ok {
		return nil, false
	}
	return &m.Fields[pos], true
}

// Columns 返回全部列名（声明顺序）。
func (m *ModelMeta) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// Association 按字段名查找关联，大小写不敏感，也接受 snake_case 写法。
func (m *ModelMeta) Association(name string) (*AssociationMeta, bool) {
	for i := range m.Associations {
		if m.Associations[i].Name == name {
			return &m.Associations[i], true
		}
	}
	for i := range m.Associations {
		a := &m.Associations[i]
		if strings.EqualFold(a.Name, name) || strcase.ToSnake(a.Name) == name {
			return a, true
		}
	}
	return nil, false
}

// New 创建模型的新实例（指针）。
func (m *ModelMeta) New() any {
	return reflect.New(m.Type).Interface()
}

// Owns 判断 entity 是否为本模型的非空指针。
func (m *ModelMeta) Owns(entity any) bool {
	v := reflect.ValueOf(entity)
	return v.Kind() == reflect.Ptr && !v.IsNil() && v.Elem().Type() == m.Type
}

func (m *ModelMeta) structValue(entity any) (reflect.Value, error) {
	if !m.Owns(entity) {
		return reflect.Value{}, fmt.Errorf("%w: expected *%s, got %T", ErrInvalidModel, m.Type, entity)
	}
	return reflect.ValueOf(entity).Elem(), nil
}

// Values 读取实体全部列值；指针字段解引用，nil 指针为 nil。
func (m *ModelMeta) Values(entity any) (map[string]any, error) {
	sv, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}
	row := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		row[f.Column] = plainValue(sv.FieldByIndex(f.index))
	}
	return row, nil
}

// Value 读取单列值。
func (m *ModelMeta) Value(entity any, column string) (any, error) {
	f, ok := m.Field(column)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, m.Table, column)
	}
	sv, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}
	return plainValue(sv.FieldByIndex(f.index)), nil
}

// Key 返回实体主键值。
func (m *ModelMeta) Key(entity any) (any, error) {
	return m.Value(entity, m.PrimaryKey().Column)
}

// Assign 将列值写回实体，未知列被忽略。
func (m *ModelMeta) Assign(entity any, row map[string]any) error {
	sv, err := m.structValue(entity)
	if err != nil {
		return err
	}
	for col, val := range row {
		f, ok := m.Field(col)
		if !ok {
			continue
		}
		if err := assignValue(sv.FieldByIndex(f.index), val); err != nil {
			return fmt.Errorf("orm: assign %s.%s: %w", m.Table, col, err)
		}
	}
	return nil
}

// SetValue 写入单列值。
func (m *ModelMeta) SetValue(entity any, column string, val any) error {
	return m.Assign(entity, map[string]any{column: val})
}

// ScanTargets 为 rows.Scan 准备目标指针；未映射的列写入丢弃缓冲。
func (m *ModelMeta) ScanTargets(entity any, columns []string) ([]any, error) {
	sv, err := m.structValue(entity)
	if err != nil {
		return nil, err
	}
	dest := make([]any, len(columns))
	for i, col := range columns {
		f, ok := m.Field(col)
		if !ok {
			var discard any
			dest[i] = &discard
			continue
		}
		dest[i] = sv.FieldByIndex(f.index).Addr().Interface()
	}
	return dest, nil
}

func plainValue(v reflect.Value) any {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		if v.IsNil() {
			return nil
		}
		return append([]byte(nil), v.Bytes()...)
	}
	return v.Interface()
}

func assignValue(field reflect.Value, val any) error {
	if val == nil {
		field.SetZero()
		return nil
	}
	if field.Kind() == reflect.Ptr {
		elem := reflect.New(field.Type().Elem())
		if err := assignValue(elem.Elem(), val); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	rv := reflect.ValueOf(val)
	if rv.Type().AssignableTo(field.Type()) {
		if b, ok := val.([]byte); ok {
			field.SetBytes(append([]byte(nil), b...))
			return nil
		}
		field.Set(rv)
		return nil
	}
	if s, ok := field.Addr().Interface().(sql.Scanner); ok {
		return s.Scan(val)
	}
	if convertible(rv.Type(), field.Type()) {
		field.Set(rv.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", val, field.Type())
}

func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	numeric := func(t reflect.Type) bool {
		return isIntegerKind(t) || t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64
	}
	switch {
	case numeric(from) && numeric(to):
		return true
	case from.Kind() == reflect.String && to.Kind() == reflect.String:
		return true
	case from.Kind() == reflect.Bool && to.Kind() == reflect.Bool:
		return true
	default:
		return false
	}
}
