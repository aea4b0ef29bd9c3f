package provider

import (
	"context"

	k8smetav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kubevirtv1 "kubevirt.io/api/core/v1"
)

// VirtualMachineClient abstracts the KubeVirt VM operations the runtime uses.
// Anti-Corruption Layer: decouples the runtime from kubevirt.io/client-go/kubecli.
type VirtualMachineClient interface {
	Get(ctx context.Context, namespace, name string, opts k8smetav1.GetOptions) (*kubevirtv1.VirtualMachine, error)
	List(ctx context.Context, namespace string, opts k8smetav1.ListOptions) (*kubevirtv1.VirtualMachineList, error)
	Create(ctx context.Context, namespace string, vm *kubevirtv1.VirtualMachine, opts k8smetav1.CreateOptions) (*kubevirtv1.VirtualMachine, error)
	Delete(ctx context.Context, namespace, name string, opts k8smetav1.DeleteOptions) error
}

// VirtualMachineInstanceClient abstracts KubeVirt VMI reads.
type VirtualMachineInstanceClient interface {
	Get(ctx context.Context, namespace, name string, opts k8smetav1.GetOptions) (*kubevirtv1.VirtualMachineInstance, error)
}

// KubeVirtClusterClient provides kubevirt clients for the target cluster.
type KubeVirtClusterClient interface {
	VM() VirtualMachineClient
	VMI() VirtualMachineInstanceClient
}
