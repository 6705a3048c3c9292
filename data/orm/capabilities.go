package orm

// Capability 表示持久化上下文可选支持的能力标识。
// 超出能力的调用由上下文返回 ErrUnsupported，而非静默降级。
type Capability string

const (
	CapabilityBasicCRUD   Capability = "basic_crud"
	CapabilityQuery       Capability = "query"
	CapabilityPreload     Capability = "preload"
	CapabilityTransaction Capability = "transaction"
	CapabilityRawFilter   Capability = "raw_filter"
)

// Capabilities 以集合形式表达上下文支持的能力。
type Capabilities map[Capability]bool

// Supports 判断是否支持指定能力。
func (c Capabilities) Supports(cap Capability) bool {
	if c == nil {
		return false
	}
	return c[cap]
}

// Require 返回第一个不支持的能力对应的错误。
func (c Capabilities) Require(caps ...Capability) error {
	for _, cap := range caps {
		if !c.Supports(cap) {
			return &UnsupportedError{Capability: cap}
		}
	}
	return nil
}

// NewCapabilities 便捷构造能力集合。
func NewCapabilities(caps ...Capability) Capabilities {
	set := make(Capabilities, len(caps))
	for _, cap := range caps {
		set[cap] = true
	}
	return set
}
