// Package flowtable keeps the software-defined flow rules and the
// round-robin load balancer over healthy instances.
package flowtable

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sri0013/vnf-project/internal/domain"
	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
)

// InstanceSource is the part of the instance registry the flow table reads.
type InstanceSource interface {
	ListActive(vnfType domain.VNFType) []domain.Instance
	ViewActive(id string, fn func(domain.Instance) error) error
}

// Observer is told the number of active rules of a type after every change.
type Observer interface {
	FlowRulesChanged(vnfType domain.VNFType, active int)
}

type entry struct {
	rule domain.FlowRule
	seq  uint64
}

// Table stores flow rules keyed by id.
type Table struct {
	source   InstanceSource
	observer Observer

	mu    sync.RWMutex
	rules map[string]*entry
	seq   uint64
}

// NewTable creates a flow table bound to an instance source. observer may be nil.
func NewTable(source InstanceSource, observer Observer) *Table {
	return &Table{
		source:   source,
		observer: observer,
		rules:    make(map[string]*entry),
	}
}

// AddFlow installs a rule steering vnfType traffic to an ACTIVE instance.
func (t *Table) AddFlow(vnfType domain.VNFType, instanceID string, priority int) (domain.FlowRule, error) {
	return t.add(vnfType, instanceID, priority, "")
}

// AddSFCFlow installs a rule for one hop of a service chain.
func (t *Table) AddSFCFlow(sfcID string, vnfType domain.VNFType, instanceID string, priority int) (domain.FlowRule, error) {
	return t.add(vnfType, instanceID, priority, sfcID)
}

func (t *Table) add(vnfType domain.VNFType, instanceID string, priority int, sfcID string) (domain.FlowRule, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return domain.FlowRule{}, err
	}

	var rule domain.FlowRule
	// The status check and the insert happen under the registry read lock,
	// so an instance cannot start draining between them.
	err = t.source.ViewActive(instanceID, func(inst domain.Instance) error {
		if inst.VNFType != vnfType {
			return apperrors.BadRequest(apperrors.CodeValidationFailed,
				"instance "+instanceID+" is a "+string(inst.VNFType)+", not a "+string(vnfType))
		}
		rule = domain.FlowRule{
			ID:         id.String(),
			VNFType:    vnfType,
			InstanceID: instanceID,
			Priority:   priority,
			Status:     domain.FlowActive,
			SFCID:      sfcID,
			CreatedAt:  time.Now(),
		}
		t.mu.Lock()
		t.seq++
		t.rules[rule.ID] = &entry{rule: rule, seq: t.seq}
		t.mu.Unlock()
		return nil
	})
	if err != nil {
		return domain.FlowRule{}, err
	}
	t.notify(vnfType)
	return rule, nil
}

// RemoveFlow deletes a rule. Removing an unknown id returns false.
func (t *Table) RemoveFlow(id string) bool {
	t.mu.Lock()
	e, ok := t.rules[id]
	if ok {
		delete(t.rules, id)
	}
	t.mu.Unlock()

	if ok {
		t.notify(e.rule.VNFType)
	}
	return ok
}

// RemoveFlowsForInstance deletes every rule pointing at an instance and
// returns how many were removed.
func (t *Table) RemoveFlowsForInstance(instanceID string) int {
	t.mu.Lock()
	var vnfType domain.VNFType
	n := 0
	for id, e := range t.rules {
		if e.rule.InstanceID == instanceID {
			vnfType = e.rule.VNFType
			delete(t.rules, id)
			n++
		}
	}
	t.mu.Unlock()

	if n > 0 {
		t.notify(vnfType)
	}
	return n
}

// Get returns one rule.
func (t *Table) Get(id string) (domain.FlowRule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.rules[id]
	if !ok {
		return domain.FlowRule{}, false
	}
	return e.rule, true
}

// FlowsFor returns the active rules of a type in creation order.
func (t *Table) FlowsFor(vnfType domain.VNFType) []domain.FlowRule {
	return t.filter(func(r domain.FlowRule) bool { return r.VNFType == vnfType })
}

// FlowsForInstance returns the active rules pointing at an instance.
func (t *Table) FlowsForInstance(instanceID string) []domain.FlowRule {
	return t.filter(func(r domain.FlowRule) bool { return r.InstanceID == instanceID })
}

// List returns every active rule in creation order.
func (t *Table) List() []domain.FlowRule {
	return t.filter(func(domain.FlowRule) bool { return true })
}

// Count returns the number of active rules of a type.
func (t *Table) Count(vnfType domain.VNFType) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, e := range t.rules {
		if e.rule.VNFType == vnfType {
			n++
		}
	}
	return n
}

func (t *Table) filter(keep func(domain.FlowRule) bool) []domain.FlowRule {
	t.mu.RLock()
	matched := make([]*entry, 0, len(t.rules))
	for _, e := range t.rules {
		if keep(e.rule) {
			matched = append(matched, e)
		}
	}
	t.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	out := make([]domain.FlowRule, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.rule)
	}
	return out
}

func (t *Table) notify(vnfType domain.VNFType) {
	if t.observer == nil {
		return
	}
	t.observer.FlowRulesChanged(vnfType, t.Count(vnfType))
}
