package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	k8sv1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	k8smetav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	kubevirtv1 "kubevirt.io/api/core/v1"

	"github.com/sri0013/vnf-project/internal/domain"
)

type fakeCluster struct {
	mu      sync.Mutex
	vms     map[string]*kubevirtv1.VirtualMachine
	ip      string // "" keeps VMIs without an address
	deleted []string
}

func newFakeCluster(ip string) *fakeCluster {
	return &fakeCluster{vms: make(map[string]*kubevirtv1.VirtualMachine), ip: ip}
}

func (f *fakeCluster) VM() VirtualMachineClient           { return fakeVMClient{f} }
func (f *fakeCluster) VMI() VirtualMachineInstanceClient { return fakeVMIClient{f} }

var vmResource = schema.GroupResource{Group: "kubevirt.io", Resource: "virtualmachines"}

type fakeVMClient struct{ f *fakeCluster }

func (c fakeVMClient) Get(_ context.Context, _, name string, _ k8smetav1.GetOptions) (*kubevirtv1.VirtualMachine, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	vm, ok := c.f.vms[name]
	if !ok {
		return nil, apierrors.NewNotFound(vmResource, name)
	}
	return vm, nil
}

func (c fakeVMClient) List(_ context.Context, _ string, _ k8smetav1.ListOptions) (*kubevirtv1.VirtualMachineList, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	list := &kubevirtv1.VirtualMachineList{}
	for _, vm := range c.f.vms {
		list.Items = append(list.Items, *vm)
	}
	return list, nil
}

func (c fakeVMClient) Create(_ context.Context, _ string, vm *kubevirtv1.VirtualMachine, _ k8smetav1.CreateOptions) (*kubevirtv1.VirtualMachine, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	created := vm.DeepCopy()
	created.CreationTimestamp = k8smetav1.NewTime(time.Now())
	c.f.vms[vm.Name] = created
	return created, nil
}

func (c fakeVMClient) Delete(_ context.Context, _, name string, _ k8smetav1.DeleteOptions) error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if _, ok := c.f.vms[name]; !ok {
		return apierrors.NewNotFound(vmResource, name)
	}
	delete(c.f.vms, name)
	c.f.deleted = append(c.f.deleted, name)
	return nil
}

type fakeVMIClient struct{ f *fakeCluster }

func (c fakeVMIClient) Get(_ context.Context, ns, name string, _ k8smetav1.GetOptions) (*kubevirtv1.VirtualMachineInstance, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	if _, ok := c.f.vms[name]; !ok {
		return nil, apierrors.NewNotFound(schema.GroupResource{Group: "kubevirt.io", Resource: "virtualmachineinstances"}, name)
	}
	vmi := &kubevirtv1.VirtualMachineInstance{
		ObjectMeta: k8smetav1.ObjectMeta{Name: name, Namespace: ns},
	}
	vmi.Status.Phase = kubevirtv1.Running
	if c.f.ip != "" {
		vmi.Status.Interfaces = []kubevirtv1.VirtualMachineInstanceNetworkInterface{{Name: "default", IP: c.f.ip}}
	}
	return vmi, nil
}

func newTestKubeVirtRuntime(t *testing.T, cluster *fakeCluster, timeout time.Duration) *KubeVirtRuntime {
	t.Helper()
	rt, err := NewKubeVirtRuntime(cluster, KubeVirtOptions{
		Namespace:        "vnf",
		ImagePattern:     "my-%s-vnf",
		ProbePort:        8080,
		CPUCores:         2,
		Memory:           "2Gi",
		OperationTimeout: timeout,
		PollInterval:     5 * time.Millisecond,
	})
	require.NoError(t, err)
	return rt
}

func TestKubeVirtRuntime_BuildVM(t *testing.T) {
	rt := newTestKubeVirtRuntime(t, newFakeCluster("10.0.0.7"), time.Second)

	vm := rt.buildVM(domain.VNFEncryptionGateway)

	assert.True(t, strings.HasPrefix(vm.Name, "encryption-gateway-"), vm.Name)
	assert.Equal(t, "vnf", vm.Namespace)
	assert.Equal(t, "encryption_gateway", vm.Labels[LabelVNFType])
	require.NotNil(t, vm.Spec.RunStrategy)
	assert.Equal(t, kubevirtv1.RunStrategyAlways, *vm.Spec.RunStrategy)
	require.NotNil(t, vm.Spec.Template)

	spec := vm.Spec.Template.Spec
	require.NotNil(t, spec.Domain.CPU)
	assert.Equal(t, uint32(2), spec.Domain.CPU.Cores)
	mem := spec.Domain.Resources.Requests[k8sv1.ResourceMemory]
	assert.Equal(t, "2Gi", mem.String())

	require.Len(t, spec.Volumes, 2)
	require.Len(t, spec.Domain.Devices.Disks, 2)
	require.NotNil(t, spec.Volumes[0].VolumeSource.ContainerDisk)
	assert.Equal(t, "my-encryption_gateway-vnf", spec.Volumes[0].VolumeSource.ContainerDisk.Image)
	require.NotNil(t, spec.Volumes[1].VolumeSource.CloudInitNoCloud)
	assert.Contains(t, spec.Volumes[1].VolumeSource.CloudInitNoCloud.UserData, "VNF_TYPE=encryption_gateway")
}

func TestKubeVirtRuntime_CreateWaitsForAddress(t *testing.T) {
	cluster := newFakeCluster("10.0.0.7")
	rt := newTestKubeVirtRuntime(t, cluster, time.Second)

	unit, err := rt.Create(context.Background(), domain.VNFFirewall)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7:8080", unit.Address)
	assert.Equal(t, domain.VNFFirewall, unit.VNFType)
	assert.False(t, unit.CreatedAt.IsZero())

	require.NoError(t, rt.Terminate(context.Background(), unit.ID))
	require.NoError(t, rt.Terminate(context.Background(), unit.ID), "already deleted is not an error")
	assert.Equal(t, []string{unit.ID}, cluster.deleted)
}

func TestKubeVirtRuntime_CreateTimesOutAndCleansUp(t *testing.T) {
	cluster := newFakeCluster("")
	rt := newTestKubeVirtRuntime(t, cluster, 50*time.Millisecond)

	_, err := rt.Create(context.Background(), domain.VNFAntivirus)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "address"))

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	assert.Empty(t, cluster.vms)
	assert.Len(t, cluster.deleted, 1)
}

func TestNewKubeVirtRuntime_InvalidMemory(t *testing.T) {
	_, err := NewKubeVirtRuntime(newFakeCluster(""), KubeVirtOptions{Memory: "lots"})
	assert.Error(t, err)
}

func TestVMIAddress(t *testing.T) {
	assert.Empty(t, VMIAddress(nil))

	vmi := &kubevirtv1.VirtualMachineInstance{}
	vmi.Status.Phase = kubevirtv1.Scheduling
	vmi.Status.Interfaces = []kubevirtv1.VirtualMachineInstanceNetworkInterface{{IP: "10.1.1.1"}}
	assert.Empty(t, VMIAddress(vmi), "not running yet")

	vmi.Status.Phase = kubevirtv1.Running
	assert.Equal(t, "10.1.1.1", VMIAddress(vmi))

	vmi.Status.Interfaces = []kubevirtv1.VirtualMachineInstanceNetworkInterface{{IPs: []string{"", "10.2.2.2"}}}
	assert.Equal(t, "10.2.2.2", VMIAddress(vmi))
}
