// Package idgen 提供分布式 ID 生成，基于 sonyflake
package idgen

import (
	"fmt"
	"sync"

	"github.com/sony/sonyflake"
)

// Generator ID 生成器接口
type Generator interface {
	Generate() uint64
}

type flakeGenerator struct {
	sf *sonyflake.Sonyflake
}

var (
	defaultGen  Generator
	defaultOnce sync.Once
)

// New 创建 sonyflake 生成器
func New() (Generator, error) {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{})
	if sf == nil {
		return nil, fmt.Errorf("failed to init sonyflake")
	}
	return &flakeGenerator{sf: sf}, nil
}

// Generate 生成一个全局唯一 ID；sonyflake 时钟异常时退化为 panic，
// 上层进程应当在启动期就发现这一配置问题
func (g *flakeGenerator) Generate() uint64 {
	id, err := g.sf.NextID()
	if err != nil {
		panic(fmt.Sprintf("sonyflake NextID failed: %v", err))
	}
	return id
}

// Default 返回进程级默认生成器
func Default() Generator {
	defaultOnce.Do(func() {
		g, err := New()
		if err != nil {
			panic(err)
		}
		defaultGen = g
	})
	return defaultGen
}

// GenID 使用默认生成器生成 ID
func GenID() uint64 {
	return Default().Generate()
}
