package producer

import (
	"context"
	"slices"
	"sync"
)

// ModeCombat 战斗模式
const ModeCombat = "combat"

// Scene 宿主维护的当前场景状态
type Scene struct {
	// Persona 当前扮演的角色名
	Persona string `json:"persona,omitempty" yaml:"persona,omitempty"`
	// Location 地点
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	// Date 剧情内日期
	Date string `json:"date,omitempty" yaml:"date,omitempty"`
	// TimeOfDay 时段（清晨、黄昏……）
	TimeOfDay string `json:"time_of_day,omitempty" yaml:"time_of_day,omitempty"`
	// Weather 天气
	Weather string `json:"weather,omitempty" yaml:"weather,omitempty"`
	// Mode 模式，等于 combat 时渲染战斗头
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
	// Badges 当前剧本的标记，渲染在场景头之前
	Badges []string `json:"badges,omitempty" yaml:"badges,omitempty"`
	// Balance 可选的花费/余额提示
	Balance string `json:"balance,omitempty" yaml:"balance,omitempty"`
	// Combat 战斗信息
	Combat Combat `json:"combat,omitempty" yaml:"combat,omitempty"`
}

// Combat 战斗状态
type Combat struct {
	Round     int      `json:"round,omitempty" yaml:"round,omitempty"`
	Enemies   []string `json:"enemies,omitempty" yaml:"enemies,omitempty"`
	Objective string   `json:"objective,omitempty" yaml:"objective,omitempty"`
}

// InCombat 是否处于战斗模式
func (s Scene) InCombat() bool {
	return s.Mode == ModeCombat
}

func (s Scene) clone() Scene {
	s.Badges = slices.Clone(s.Badges)
	s.Combat.Enemies = slices.Clone(s.Combat.Enemies)
	return s
}

// SceneSource 提供当前场景
type SceneSource interface {
	Scene(ctx context.Context) (Scene, error)
}

// SceneState 线程安全的场景状态，宿主在收到事件时更新
type SceneState struct {
	scene Scene
	mu    sync.RWMutex
}

// NewSceneState 创建场景状态
func NewSceneState(initial Scene) *SceneState {
	return &SceneState{scene: initial.clone()}
}

// Scene 实现 SceneSource
func (s *SceneState) Scene(_ context.Context) (Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scene.clone(), nil
}

// Set 替换整个场景
func (s *SceneState) Set(scene Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene = scene.clone()
}

// Update 在锁内修改场景
func (s *SceneState) Update(fn func(*Scene)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.scene)
}

// 编译时接口检查
var _ SceneSource = (*SceneState)(nil)
