package views

import "sync"

// PlanCache holds compiled mapping plans per view name. Redefining a
// view replaces its cached plan.
type PlanCache struct {
	mu    sync.RWMutex
	plans map[string]*MappingPlan
}

func NewPlanCache() *PlanCache {
	return &PlanCache{
		plans: make(map[string]*MappingPlan),
	}
}

func (c *PlanCache) Get(name string) (*MappingPlan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	plan, ok := c.plans[name]
	return plan, ok
}

func (c *PlanCache) Put(plan *MappingPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans[plan.ViewName] = plan
}

func (c *PlanCache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.plans, name)
}

func (c *PlanCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.plans))
	for name := range c.plans {
		names = append(names, name)
	}
	return names
}
