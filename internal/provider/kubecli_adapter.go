package provider

import (
	"context"
	"fmt"

	k8smetav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/tools/clientcmd"
	kubevirtv1 "kubevirt.io/api/core/v1"
	"kubevirt.io/client-go/kubecli"
)

// NewKubeVirtClusterClient builds a cluster client from a kubeconfig path.
// An empty path falls back to the in-cluster service account.
func NewKubeVirtClusterClient(kubeconfigPath string) (KubeVirtClusterClient, error) {
	restCfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig %q: %w", kubeconfigPath, err)
	}

	virtClient, err := kubecli.GetKubevirtClientFromRESTConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("build kubevirt client: %w", err)
	}

	return &kubevirtClusterClient{client: virtClient}, nil
}

type kubevirtClusterClient struct {
	client kubecli.KubevirtClient
}

func (c *kubevirtClusterClient) VM() VirtualMachineClient {
	return &kubevirtVMClient{client: c.client}
}

func (c *kubevirtClusterClient) VMI() VirtualMachineInstanceClient {
	return &kubevirtVMIClient{client: c.client}
}

type kubevirtVMClient struct {
	client kubecli.KubevirtClient
}

func (c *kubevirtVMClient) Get(ctx context.Context, namespace, name string, opts k8smetav1.GetOptions) (*kubevirtv1.VirtualMachine, error) {
	return c.client.VirtualMachine(namespace).Get(ctx, name, opts)
}

func (c *kubevirtVMClient) List(ctx context.Context, namespace string, opts k8smetav1.ListOptions) (*kubevirtv1.VirtualMachineList, error) {
	return c.client.VirtualMachine(namespace).List(ctx, opts)
}

func (c *kubevirtVMClient) Create(ctx context.Context, namespace string, vm *kubevirtv1.VirtualMachine, opts k8smetav1.CreateOptions) (*kubevirtv1.VirtualMachine, error) {
	return c.client.VirtualMachine(namespace).Create(ctx, vm, opts)
}

func (c *kubevirtVMClient) Delete(ctx context.Context, namespace, name string, opts k8smetav1.DeleteOptions) error {
	return c.client.VirtualMachine(namespace).Delete(ctx, name, opts)
}

type kubevirtVMIClient struct {
	client kubecli.KubevirtClient
}

func (c *kubevirtVMIClient) Get(ctx context.Context, namespace, name string, opts k8smetav1.GetOptions) (*kubevirtv1.VirtualMachineInstance, error) {
	return c.client.VirtualMachineInstance(namespace).Get(ctx, name, opts)
}
