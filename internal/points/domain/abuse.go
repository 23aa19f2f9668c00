package domain

// AbuseMonitor 反滥用监控：跟踪连续负向事件（拒单、超时响应），
// 跨过阈值时只对外发出暂停信号，账户的启停状态由外部账户状态服务独占写入。
type AbuseMonitor struct {
	declineThreshold int
}

// NewAbuseMonitor 创建监控器；threshold <= 0 时关闭监控
func NewAbuseMonitor(declineThreshold int) *AbuseMonitor {
	return &AbuseMonitor{declineThreshold: declineThreshold}
}

// Check 判断账户当前的连续负向事件数是否触发暂停信号
func (m *AbuseMonitor) Check(account *Account) bool {
	if m.declineThreshold <= 0 {
		return false
	}
	return account.ConsecutiveDeclines >= m.declineThreshold
}

// Threshold 当前阈值
func (m *AbuseMonitor) Threshold() int {
	return m.declineThreshold
}
