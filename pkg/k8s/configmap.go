package k8s

import (
	"context"
	"strings"

	"github.com/juju/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/cybercoder/ik8s-chassis/pkg/config"
)

// DefaultConfigMapKey is the data key read when a ConfigMap reference does
// not name one.
const DefaultConfigMapKey = "chassis-config.yaml"

// ConfigMapSource reads a chassis config document from one key of a
// ConfigMap.
type ConfigMapSource struct {
	client    kubernetes.Interface
	namespace string
	name      string
	key       string
}

// ParseConfigMapRef parses "namespace/name[:key]".
func ParseConfigMapRef(ref string) (namespace, name, key string, err error) {
	key = DefaultConfigMapKey
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		ref, key = ref[:i], ref[i+1:]
	}
	namespace, name, ok := strings.Cut(ref, "/")
	if !ok || namespace == "" || name == "" || key == "" || strings.Contains(name, "/") {
		return "", "", "", errors.NotValidf("ConfigMap reference %q, want namespace/name[:key]", ref)
	}
	return namespace, name, key, nil
}

func NewConfigMapSource(c kubernetes.Interface, ref string) (*ConfigMapSource, error) {
	namespace, name, key, err := ParseConfigMapRef(ref)
	if err != nil {
		return nil, err
	}
	return &ConfigMapSource{client: c, namespace: namespace, name: name, key: key}, nil
}

func (s *ConfigMapSource) String() string {
	return s.namespace + "/" + s.name + ":" + s.key
}

// Load fetches the ConfigMap and parses the chassis config stored under the
// source key.
func (s *ConfigMapSource) Load(ctx context.Context) (*config.ChassisConfig, error) {
	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, errors.NewNotFound(err, "ConfigMap "+s.namespace+"/"+s.name)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "getting ConfigMap %s/%s", s.namespace, s.name)
	}

	var data []byte
	if v, ok := cm.Data[s.key]; ok {
		data = []byte(v)
	} else if v, ok := cm.BinaryData[s.key]; ok {
		data = v
	} else {
		return nil, errors.NotFoundf("key %q in ConfigMap %s/%s", s.key, s.namespace, s.name)
	}

	cfg, err := config.Parse(data)
	if err != nil {
		return nil, errors.Annotatef(err, "ConfigMap %s", s)
	}
	return cfg, nil
}
