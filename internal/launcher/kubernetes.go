package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// KubernetesConfig holds configuration for the Kubernetes launcher.
type KubernetesConfig struct {
	// Namespace where jobs will be created
	Namespace string
	// ServiceAccount for job pods (optional)
	ServiceAccount string
	Image          string
	// VolumeClaim is a PVC holding the simulation root. It is mounted at
	// MountPath so job directories resolve to the same paths inside the pod.
	VolumeClaim string
	MountPath   string
	CPULimit    string
	MemoryLimit string
}

// KubernetesLauncher runs each simulation as a Kubernetes Job.
type KubernetesLauncher struct {
	clientset kubernetes.Interface
	config    KubernetesConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewKubernetesLauncher tries in-cluster configuration first and falls back
// to the local kubeconfig.
func NewKubernetesLauncher(cfg KubernetesConfig, logger *slog.Logger) (*KubernetesLauncher, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(os.Getenv("HOME"), ".kube", "config")
		logger.Info("in-cluster config not available, using kubeconfig", "path", kubeconfig, "reason", err)
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	return newKubernetesLauncher(clientset, cfg, logger), nil
}

func newKubernetesLauncher(clientset kubernetes.Interface, cfg KubernetesConfig, logger *slog.Logger) *KubernetesLauncher {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.CPULimit == "" {
		cfg.CPULimit = "2"
	}
	if cfg.MemoryLimit == "" {
		cfg.MemoryLimit = "2Gi"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KubernetesLauncher{clientset: clientset, config: cfg, logger: logger, now: time.Now}
}

func (k *KubernetesLauncher) Name() string { return "kubernetes" }

// Submit creates the Job. The handle is the Job name.
func (k *KubernetesLauncher) Submit(ctx context.Context, d Descriptor) (string, error) {
	jobName := fmt.Sprintf("simplane-%d-%d", d.SimulationID, k.now().Unix())

	var envVars []corev1.EnvVar
	for _, kv := range envList(d.Env) {
		name, value, _ := strings.Cut(kv, "=")
		envVars = append(envVars, corev1.EnvVar{Name: name, Value: value})
	}

	resources := corev1.ResourceRequirements{
		Limits: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse(k.config.CPULimit),
			corev1.ResourceMemory: resource.MustParse(k.config.MemoryLimit),
		},
	}

	labels := map[string]string{
		"job-name":                     jobName,
		"app.kubernetes.io/managed-by": "simplane",
		"simplane/simulation-id":       fmt.Sprint(d.SimulationID),
	}

	backoffLimit := int32(0)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: k.config.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:       "solver",
							Image:      k.config.Image,
							Command:    containerCommand(d),
							WorkingDir: d.WorkDir,
							Env:        envVars,
							Resources:  resources,
						},
					},
				},
			},
		},
	}

	if k.config.ServiceAccount != "" {
		job.Spec.Template.Spec.ServiceAccountName = k.config.ServiceAccount
	}
	if k.config.VolumeClaim != "" {
		spec := &job.Spec.Template.Spec
		spec.Volumes = []corev1.Volume{{
			Name: "simulations",
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: k.config.VolumeClaim},
			},
		}}
		spec.Containers[0].VolumeMounts = []corev1.VolumeMount{{
			Name:      "simulations",
			MountPath: k.config.MountPath,
		}}
	}

	created, err := k.clientset.BatchV1().Jobs(k.config.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return "", &SubmissionError{Launcher: k.Name(), Err: fmt.Errorf("create job: %w", err)}
	}

	k.logger.Info("created kubernetes job", "job", created.Name, "namespace", k.config.Namespace, "simulation_id", d.SimulationID)
	return created.Name, nil
}

// Status reads the Job's status counters.
func (k *KubernetesLauncher) Status(ctx context.Context, handle string) (RemoteState, error) {
	job, err := k.clientset.BatchV1().Jobs(k.config.Namespace).Get(ctx, handle, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return RemoteUnknown, nil
		}
		return RemoteUnknown, fmt.Errorf("get job %s: %w", handle, err)
	}

	switch {
	case job.Status.Succeeded > 0:
		return RemoteCompleted, nil
	case job.Status.Failed > 0:
		return RemoteFailed, nil
	case job.Status.Active > 0:
		return RemoteRunning, nil
	default:
		return RemotePending, nil
	}
}
