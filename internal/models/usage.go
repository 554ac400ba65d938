package models

// TokenUsage 用户Token用量
type TokenUsage struct {
	UserID string `json:"userId"`
	Used   int    `json:"used"`
	Limit  int    `json:"limit"`
}

// Remaining 剩余额度，不小于0
func (u TokenUsage) Remaining() int {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}

// Percentage 已用百分比（四舍五入）
func (u TokenUsage) Percentage() int {
	if u.Limit <= 0 {
		return 100
	}
	return (u.Used*100 + u.Limit/2) / u.Limit
}
