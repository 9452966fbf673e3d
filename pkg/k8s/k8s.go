package k8s

import (
	"os"
	"sync"

	"github.com/juju/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var (
	clientMu sync.Mutex
	client   kubernetes.Interface
)

// CreateClient returns the process wide Kubernetes client, building it on
// first use from kubeconfig, or from the in-cluster service account when
// kubeconfig is empty.
func CreateClient(kubeconfig string) (kubernetes.Interface, error) {
	clientMu.Lock()
	defer clientMu.Unlock()
	// singleton
	if client != nil {
		return client, nil
	}

	config, err := createConfig(kubeconfig)
	if err != nil {
		return nil, err
	}

	cs, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, errors.Annotate(err, "creating Kubernetes client")
	}
	client = cs
	return client, nil
}

func createConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		config, err := rest.InClusterConfig()
		if err != nil {
			return nil, errors.Annotate(err, "loading in-cluster config")
		}
		return config, nil
	}
	if _, err := os.Stat(kubeconfig); err != nil {
		return nil, errors.Annotatef(err, "kubeconfig %s", kubeconfig)
	}
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, errors.Annotatef(err, "loading kubeconfig %s", kubeconfig)
	}
	return config, nil
}
