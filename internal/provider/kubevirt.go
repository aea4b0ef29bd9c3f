package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	k8sv1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	k8smetav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	kubevirtv1 "kubevirt.io/api/core/v1"

	"github.com/sri0013/vnf-project/internal/domain"
	"github.com/sri0013/vnf-project/internal/pkg/logger"
)

// KubeVirtOptions configures a KubeVirtRuntime.
type KubeVirtOptions struct {
	Namespace string
	// ImagePattern is a fmt pattern taking the vnf type, e.g. "my-%s-vnf".
	ImagePattern     string
	ProbePort        int
	CPUCores         uint32
	Memory           string
	OperationTimeout time.Duration
	PollInterval     time.Duration
}

// KubeVirtRuntime runs each VNF unit as a KubeVirt VirtualMachine.
// The kubecli client is bound at the composition root.
type KubeVirtRuntime struct {
	client           KubeVirtClusterClient
	mapper           *KubeVirtMapper
	namespace        string
	imagePattern     string
	cpuCores         uint32
	memory           resource.Quantity
	operationTimeout time.Duration
	pollInterval     time.Duration
}

// NewKubeVirtRuntime creates a KubeVirtRuntime.
func NewKubeVirtRuntime(client KubeVirtClusterClient, opts KubeVirtOptions) (*KubeVirtRuntime, error) {
	if client == nil {
		return nil, fmt.Errorf("kubevirt client is required")
	}
	mem, err := resource.ParseQuantity(opts.Memory)
	if err != nil {
		return nil, fmt.Errorf("parse memory %q: %w", opts.Memory, err)
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 5 * time.Minute // same default as config.go
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.CPUCores == 0 {
		opts.CPUCores = 1
	}
	if opts.ImagePattern == "" {
		opts.ImagePattern = "my-%s-vnf"
	}
	return &KubeVirtRuntime{
		client:           client,
		mapper:           NewKubeVirtMapper(opts.ProbePort),
		namespace:        opts.Namespace,
		imagePattern:     opts.ImagePattern,
		cpuCores:         opts.CPUCores,
		memory:           mem,
		operationTimeout: opts.OperationTimeout,
		pollInterval:     opts.PollInterval,
	}, nil
}

// withTimeout wraps ctx with the configured K8s operation timeout.
func (r *KubeVirtRuntime) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.operationTimeout)
}

func (r *KubeVirtRuntime) Name() string { return "kubevirt" }

// Create starts a VM for the type and waits until its VMI reports an IP.
// A VM that never gets an address is deleted again.
func (r *KubeVirtRuntime) Create(ctx context.Context, vnfType domain.VNFType) (*Unit, error) {
	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	vm := r.buildVM(vnfType)
	created, err := r.client.VM().Create(opCtx, r.namespace, vm, k8smetav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("create vm in %s: %w", r.namespace, err)
	}

	var unit *Unit
	err = wait.PollUntilContextCancel(opCtx, r.pollInterval, true, func(ctx context.Context) (bool, error) {
		vmi, err := r.client.VMI().Get(ctx, r.namespace, created.Name, k8smetav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return false, nil
			}
			logger.Debug("VMI lookup failed, retrying",
				zap.String("vm", created.Name),
				zap.Error(err),
			)
			return false, nil
		}
		if VMIAddress(vmi) == "" {
			return false, nil
		}
		unit, err = r.mapper.MapUnit(created, vmi)
		return err == nil, err
	})
	if err != nil {
		// Best effort: the unit never became addressable.
		if delErr := r.Terminate(context.WithoutCancel(ctx), created.Name); delErr != nil {
			logger.Warn("Failed to delete unaddressable VM",
				zap.String("vm", created.Name),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("wait for vm %s/%s address: %w", r.namespace, created.Name, err)
	}

	if unit.VNFType == "" {
		unit.VNFType = vnfType
	}
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = time.Now()
	}
	return unit, nil
}

// Terminate deletes the VM. A VM that is already gone is not an error.
func (r *KubeVirtRuntime) Terminate(ctx context.Context, unitID string) error {
	opCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.client.VM().Delete(opCtx, r.namespace, unitID, k8smetav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete vm %s/%s: %w", r.namespace, unitID, err)
	}
	return nil
}

// buildVM creates the VirtualMachine object for one unit of a type.
func (r *KubeVirtRuntime) buildVM(vnfType domain.VNFType) *kubevirtv1.VirtualMachine {
	name := vmName(vnfType)
	labels := map[string]string{
		LabelVNFType:   string(vnfType),
		LabelManagedBy: managedByValue,
	}
	runStrategy := kubevirtv1.RunStrategyAlways

	return &kubevirtv1.VirtualMachine{
		ObjectMeta: k8smetav1.ObjectMeta{
			Name:      name,
			Namespace: r.namespace,
			Labels:    labels,
		},
		Spec: kubevirtv1.VirtualMachineSpec{
			RunStrategy: &runStrategy,
			Template: &kubevirtv1.VirtualMachineInstanceTemplateSpec{
				ObjectMeta: k8smetav1.ObjectMeta{Labels: labels},
				Spec: kubevirtv1.VirtualMachineInstanceSpec{
					Domain: kubevirtv1.DomainSpec{
						CPU: &kubevirtv1.CPU{Cores: r.cpuCores},
						Resources: kubevirtv1.ResourceRequirements{
							Requests: k8sv1.ResourceList{
								k8sv1.ResourceMemory: r.memory,
							},
						},
						Devices: kubevirtv1.Devices{
							Disks: []kubevirtv1.Disk{
								{
									Name: "rootdisk",
									DiskDevice: kubevirtv1.DiskDevice{
										Disk: &kubevirtv1.DiskTarget{Bus: kubevirtv1.DiskBusVirtio},
									},
								},
								{
									Name: "cloudinitdisk",
									DiskDevice: kubevirtv1.DiskDevice{
										Disk: &kubevirtv1.DiskTarget{Bus: kubevirtv1.DiskBusVirtio},
									},
								},
							},
						},
					},
					Volumes: []kubevirtv1.Volume{
						{
							Name: "rootdisk",
							VolumeSource: kubevirtv1.VolumeSource{
								ContainerDisk: &kubevirtv1.ContainerDiskSource{
									Image: fmt.Sprintf(r.imagePattern, vnfType),
								},
							},
						},
						{
							Name: "cloudinitdisk",
							VolumeSource: kubevirtv1.VolumeSource{
								CloudInitNoCloud: &kubevirtv1.CloudInitNoCloudSource{
									UserData: cloudInit(vnfType, r.mapper.probePort),
								},
							},
						},
					},
				},
			},
		},
	}
}

// vmName returns a DNS-1123 name: <type>-<8 hex>.
func vmName(vnfType domain.VNFType) string {
	base := strings.ReplaceAll(strings.ToLower(string(vnfType)), "_", "-")
	return base + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func cloudInit(vnfType domain.VNFType, port int) string {
	return fmt.Sprintf("#cloud-config\nwrite_files:\n  - path: /etc/vnf/env\n    content: |\n      VNF_TYPE=%s\n      PROBE_PORT=%d\n", vnfType, port)
}
