package auth

import "sync"

// Policy 声明式的 资源/动作 → 角色 表；未声明的动作对所有已登录用户开放
type Policy struct {
	mu    sync.RWMutex
	rules map[string]map[string]struct{}
}

func NewPolicy() *Policy { return &Policy{rules: map[string]map[string]struct{}{}} }

func key(resource, action string) string { return resource + ":" + action }

// Requires 声明动作所需角色，可重复调用追加
func (p *Policy) Requires(resource, action string, roles ...string) *Policy {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(resource, action)
	set, ok := p.rules[k]
	if !ok {
		set = map[string]struct{}{}
		p.rules[k] = set
	}
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return p
}

func (p *Policy) Declared(resource, action string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.rules[key(resource, action)]
	return ok
}

func (p *Policy) Allowed(resource, action, role string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set, ok := p.rules[key(resource, action)]
	if !ok {
		return true
	}
	_, ok = set[role]
	return ok
}
