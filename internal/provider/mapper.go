package provider

import (
	"fmt"
	"net"
	"strconv"

	kubevirtv1 "kubevirt.io/api/core/v1"

	"github.com/sri0013/vnf-project/internal/domain"
)

// Labels set on every VM the runtime creates.
const (
	LabelVNFType   = "vnf.sri0013.io/type"
	LabelManagedBy = "app.kubernetes.io/managed-by"
	managedByValue = "vnf-orchestrator"
)

// KubeVirtMapper maps KubeVirt objects to units.
// Anti-Corruption Layer: isolates the control plane from K8s API changes.
type KubeVirtMapper struct {
	probePort int
}

// NewKubeVirtMapper creates a new KubeVirtMapper.
func NewKubeVirtMapper(probePort int) *KubeVirtMapper {
	return &KubeVirtMapper{probePort: probePort}
}

// MapUnit maps a VM and its running VMI to a Unit. The VMI must report an IP.
func (m *KubeVirtMapper) MapUnit(vm *kubevirtv1.VirtualMachine, vmi *kubevirtv1.VirtualMachineInstance) (*Unit, error) {
	if vm == nil {
		return nil, fmt.Errorf("mapper: vm is nil")
	}
	if vm.Name == "" {
		return nil, fmt.Errorf("mapper: vm name is empty")
	}

	ip := VMIAddress(vmi)
	if ip == "" {
		return nil, fmt.Errorf("mapper: vmi %s has no address", vm.Name)
	}

	u := &Unit{
		ID:      vm.Name,
		VNFType: domain.VNFType(vm.Labels[LabelVNFType]),
		Address: net.JoinHostPort(ip, strconv.Itoa(m.probePort)),
	}
	if !vm.CreationTimestamp.IsZero() {
		u.CreatedAt = vm.CreationTimestamp.Time
	}
	return u, nil
}

// VMIAddress returns the first interface IP of a running VMI, or "".
func VMIAddress(vmi *kubevirtv1.VirtualMachineInstance) string {
	if vmi == nil || vmi.Status.Phase != kubevirtv1.Running {
		return ""
	}
	for _, iface := range vmi.Status.Interfaces {
		if iface.IP != "" {
			return iface.IP
		}
		for _, ip := range iface.IPs {
			if ip != "" {
				return ip
			}
		}
	}
	return ""
}
