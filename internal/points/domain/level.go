package domain

// LevelRequirement 单个等级的晋升门槛，积分与完案数两个维度须同时满足
type LevelRequirement struct {
	Level          int   `json:"level"`
	LevelPoints    int64 `json:"level_points"`
	CasesCompleted int64 `json:"cases_completed"`
}

// LevelTable 等级表，1..N，阈值随等级单调不减
type LevelTable struct {
	requirements []LevelRequirement
}

// NewLevelTable 构造等级表并校验单调性
func NewLevelTable(reqs []LevelRequirement) (*LevelTable, error) {
	if len(reqs) == 0 {
		return nil, ErrInvalidLevelTable
	}
	for i, r := range reqs {
		if r.Level != i+1 {
			return nil, ErrInvalidLevelTable
		}
		if i > 0 {
			prev := reqs[i-1]
			if r.LevelPoints < prev.LevelPoints || r.CasesCompleted < prev.CasesCompleted {
				return nil, ErrInvalidLevelTable
			}
		}
	}
	copied := make([]LevelRequirement, len(reqs))
	copy(copied, reqs)
	return &LevelTable{requirements: copied}, nil
}

// NewDefaultLevelTable 默认十级等级表
func NewDefaultLevelTable() *LevelTable {
	table, err := NewLevelTable([]LevelRequirement{
		{Level: 1, LevelPoints: 0, CasesCompleted: 0},
		{Level: 2, LevelPoints: 200, CasesCompleted: 3},
		{Level: 3, LevelPoints: 500, CasesCompleted: 10},
		{Level: 4, LevelPoints: 1200, CasesCompleted: 25},
		{Level: 5, LevelPoints: 2500, CasesCompleted: 50},
		{Level: 6, LevelPoints: 5000, CasesCompleted: 100},
		{Level: 7, LevelPoints: 10000, CasesCompleted: 180},
		{Level: 8, LevelPoints: 20000, CasesCompleted: 300},
		{Level: 9, LevelPoints: 40000, CasesCompleted: 500},
		{Level: 10, LevelPoints: 80000, CasesCompleted: 800},
	})
	if err != nil {
		panic(err) // 默认表写死在代码里，出错属于编程错误
	}
	return table
}

// MaxLevel 最高等级
func (t *LevelTable) MaxLevel() int {
	return len(t.requirements)
}

// Requirement 获取指定等级的门槛；等级越界返回 false
func (t *LevelTable) Requirement(level int) (LevelRequirement, bool) {
	if level < 1 || level > len(t.requirements) {
		return LevelRequirement{}, false
	}
	return t.requirements[level-1], true
}

// Next 获取下一等级的门槛；已到顶级返回 false
func (t *LevelTable) Next(currentLevel int) (LevelRequirement, bool) {
	return t.Requirement(currentLevel + 1)
}
