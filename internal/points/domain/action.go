package domain

import "fmt"

// ActionKind 律师行为类型，积分规则表按此键查找基础分值
type ActionKind string

const (
	// 案件类
	ActionCaseCompleted ActionKind = "case_completed" // 完成案件
	ActionCaseWon       ActionKind = "case_won"       // 胜诉结案
	ActionCaseFailed    ActionKind = "case_failed"    // 败诉/失败结案
	ActionCaseDeclined  ActionKind = "case_declined"  // 拒接案件
	ActionRespondToCase ActionKind = "respond_to_case" // 响应案件邀约

	// 评价类
	ActionReviewFiveStar ActionKind = "review_5star" // 五星好评
	ActionReviewFourStar ActionKind = "review_4star" // 四星好评
	ActionReviewTwoStar  ActionKind = "review_2star" // 两星差评
	ActionReviewOneStar  ActionKind = "review_1star" // 一星差评

	// 行为类
	ActionLateResponse ActionKind = "late_response" // 超时响应
	ActionAIToolUsed   ActionKind = "ai_tool_used"  // 使用 AI 工具
	ActionOnlineHour   ActionKind = "online_hour"   // 在线满一小时
	ActionDailyLogin   ActionKind = "daily_login"   // 每日登录

	// 引擎内部行为：里程碑一次性奖励，固定分值直接入账，不走规则表与乘数
	ActionMilestoneBonus ActionKind = "milestone_bonus"
)

// RuleCatalog 不可变积分规则表，按行为类型映射有符号基础分值。
// 构造后只读，可被多个 goroutine 安全共享。
type RuleCatalog struct {
	version string
	rules   map[ActionKind]int64
}

// NewRuleCatalog 基于给定规则构造规则表（拷贝入参，冻结内容）
func NewRuleCatalog(version string, rules map[ActionKind]int64) *RuleCatalog {
	copied := make(map[ActionKind]int64, len(rules))
	for k, v := range rules {
		copied[k] = v
	}
	return &RuleCatalog{version: version, rules: copied}
}

// NewDefaultRuleCatalog 返回默认规则表
func NewDefaultRuleCatalog() *RuleCatalog {
	return NewRuleCatalog("v1", map[ActionKind]int64{
		ActionCaseCompleted: 100,
		ActionCaseWon:       150,
		ActionCaseFailed:    -50,
		ActionCaseDeclined:  -30,
		ActionRespondToCase: 15,

		ActionReviewFiveStar: 100,
		ActionReviewFourStar: 60,
		ActionReviewTwoStar:  -100,
		ActionReviewOneStar:  -300,

		ActionLateResponse: -20,
		ActionAIToolUsed:   5,
		ActionOnlineHour:   10,
		ActionDailyLogin:   5,
	})
}

// Version 规则表版本号
func (c *RuleCatalog) Version() string {
	return c.version
}

// BasePoints 查找行为的基础分值；未配置的行为返回 ErrUnknownActionKind
func (c *RuleCatalog) BasePoints(kind ActionKind) (int64, error) {
	base, ok := c.rules[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownActionKind, kind)
	}
	return base, nil
}

// Known 判断行为类型是否在规则表中
func (c *RuleCatalog) Known(kind ActionKind) bool {
	_, ok := c.rules[kind]
	return ok
}

// Kinds 返回全部已配置的行为类型
func (c *RuleCatalog) Kinds() []ActionKind {
	kinds := make([]ActionKind, 0, len(c.rules))
	for k := range c.rules {
		kinds = append(kinds, k)
	}
	return kinds
}
