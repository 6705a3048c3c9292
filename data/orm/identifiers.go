package orm

import "strings"

// IsSafeIdentifier 判断表名/列名是否为安全标识符，可直接拼入 SQL。
//
// 允许 foo、bar_1 以及 table.column；每段首字符为 [A-Za-z_]，其余为 [A-Za-z0-9_]。
func IsSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			letter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
			if i == 0 && !letter {
				return false
			}
			if !letter && !(ch >= '0' && ch <= '9') {
				return false
			}
		}
	}
	return true
}
