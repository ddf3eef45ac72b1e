// Package config loads settings from defaults, an optional YAML file, a .env
// file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"time"

	"simplane/internal/store"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// RootDir holds the simulations directory tree.
	RootDir string

	// HTTP server port for the controller
	HTTPPort int

	// URL of the controller (e.g., "http://localhost:6161")
	ControllerURL string

	// InternalToken authenticates the monitor against the internal API.
	InternalToken string

	// Optional results archive connection string
	DatabaseURL string

	// Launcher selects the execution backend: slurm, docker, kubernetes or dev.
	Launcher     string
	SlurmWorkDir string
	DockerImage  string

	KubernetesNamespace      string
	KubernetesServiceAccount string
	KubernetesVolumeClaim    string
	KubernetesCPULimit       string
	KubernetesMemoryLimit    string

	// Batch descriptor
	NodesPerJob   int
	CoresPerNode  int
	BatchTemplate string
	SolverCommand string

	// Progress estimation
	NumberTimesteps int
	JobStepCount    int

	FrameHeight     int
	AvatarPoolSize  int
	LeaderboardSize int
	CacheSize       int

	// ScoreFile is written by the solver inside each job directory.
	ScoreFile string

	MonitorPollInterval time.Duration
	MonitorMaxBackoff   time.Duration

	// Submissions per second accepted by the controller, and burst size.
	SubmitRateLimit float64
	SubmitRateBurst int

	OTELEndpoint string
	LogLevel     string
	LogFile      string
}

// envBindings maps config keys to their environment variables.
var envBindings = map[string]string{
	"root_dir":                   "ROOT_DIR",
	"http_port":                  "PORT",
	"controller_url":             "CONTROLLER_URL",
	"internal_token":             "INTERNAL_TOKEN",
	"database_url":               "DATABASE_URL",
	"launcher":                   "LAUNCHER",
	"slurm_workdir":              "SLURM_WORKDIR",
	"docker_image":               "DOCKER_IMAGE",
	"kubernetes_namespace":       "KUBERNETES_NAMESPACE",
	"kubernetes_service_account": "KUBERNETES_SERVICE_ACCOUNT",
	"kubernetes_volume_claim":    "KUBERNETES_VOLUME_CLAIM",
	"kubernetes_cpu_limit":       "KUBERNETES_CPU_LIMIT",
	"kubernetes_memory_limit":    "KUBERNETES_MEMORY_LIMIT",
	"nodes_per_job":              "NODES_PER_JOB",
	"cores_per_node":             "CORES_PER_NODE",
	"batch_template":             "BATCH_TEMPLATE",
	"solver_command":             "SOLVER_COMMAND",
	"number_timesteps":           "NUMBER_TIMESTEPS",
	"jobstep_count":              "JOBSTEP_COUNT",
	"frame_height":               "FRAME_HEIGHT",
	"avatar_pool_size":           "AVATAR_POOL_SIZE",
	"leaderboard_size":           "LEADERBOARD_SIZE",
	"cache_size":                 "CACHE_SIZE",
	"score_file":                 "SCORE_FILE",
	"monitor_poll_interval":      "MONITOR_POLL_INTERVAL",
	"monitor_max_backoff":        "MONITOR_MAX_BACKOFF",
	"submit_rate_limit":          "SUBMIT_RATE_LIMIT",
	"submit_rate_burst":          "SUBMIT_RATE_BURST",
	"otel_endpoint":              "OTEL_EXPORTER_OTLP_ENDPOINT",
	"log_level":                  "LOG_LEVEL",
	"log_file":                   "LOG_FILE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root_dir", "./data")
	v.SetDefault("http_port", 6161)
	v.SetDefault("controller_url", "http://localhost:6161")
	v.SetDefault("launcher", "slurm")
	v.SetDefault("docker_image", "simplane/solver:latest")
	v.SetDefault("kubernetes_namespace", "default")
	v.SetDefault("kubernetes_cpu_limit", "2")
	v.SetDefault("kubernetes_memory_limit", "2Gi")
	v.SetDefault("nodes_per_job", 1)
	v.SetDefault("cores_per_node", 24)
	v.SetDefault("solver_command", "srun wind-solver")
	v.SetDefault("number_timesteps", 100)
	v.SetDefault("jobstep_count", 3)
	v.SetDefault("frame_height", 480)
	v.SetDefault("avatar_pool_size", 25)
	v.SetDefault("leaderboard_size", 10)
	v.SetDefault("cache_size", 20)
	v.SetDefault("score_file", store.DefaultSolverScoreFile)
	v.SetDefault("monitor_poll_interval", 2*time.Second)
	v.SetDefault("monitor_max_backoff", 30*time.Second)
	v.SetDefault("submit_rate_limit", 1.0)
	v.SetDefault("submit_rate_burst", 3)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("log_level", "info")
}

// Load reads configuration. path names a YAML file; when empty, simplane.yaml
// in the working directory is used if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("simplane")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{
		RootDir:                  v.GetString("root_dir"),
		HTTPPort:                 v.GetInt("http_port"),
		ControllerURL:            v.GetString("controller_url"),
		InternalToken:            v.GetString("internal_token"),
		DatabaseURL:              v.GetString("database_url"),
		Launcher:                 v.GetString("launcher"),
		SlurmWorkDir:             v.GetString("slurm_workdir"),
		DockerImage:              v.GetString("docker_image"),
		KubernetesNamespace:      v.GetString("kubernetes_namespace"),
		KubernetesServiceAccount: v.GetString("kubernetes_service_account"),
		KubernetesVolumeClaim:    v.GetString("kubernetes_volume_claim"),
		KubernetesCPULimit:       v.GetString("kubernetes_cpu_limit"),
		KubernetesMemoryLimit:    v.GetString("kubernetes_memory_limit"),
		NodesPerJob:              v.GetInt("nodes_per_job"),
		CoresPerNode:             v.GetInt("cores_per_node"),
		BatchTemplate:            v.GetString("batch_template"),
		SolverCommand:            v.GetString("solver_command"),
		NumberTimesteps:          v.GetInt("number_timesteps"),
		JobStepCount:             v.GetInt("jobstep_count"),
		FrameHeight:              v.GetInt("frame_height"),
		AvatarPoolSize:           v.GetInt("avatar_pool_size"),
		LeaderboardSize:          v.GetInt("leaderboard_size"),
		CacheSize:                v.GetInt("cache_size"),
		ScoreFile:                v.GetString("score_file"),
		MonitorPollInterval:      v.GetDuration("monitor_poll_interval"),
		MonitorMaxBackoff:        v.GetDuration("monitor_max_backoff"),
		SubmitRateLimit:          v.GetFloat64("submit_rate_limit"),
		SubmitRateBurst:          v.GetInt("submit_rate_burst"),
		OTELEndpoint:             v.GetString("otel_endpoint"),
		LogLevel:                 v.GetString("log_level"),
		LogFile:                  v.GetString("log_file"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RootDir == "" {
		return required("root_dir")
	}
	switch c.Launcher {
	case "slurm", "docker", "kubernetes", "dev":
	default:
		return fmt.Errorf("invalid launcher %q: must be slurm, docker, kubernetes or dev (env: LAUNCHER)", c.Launcher)
	}

	positive := []struct {
		key string
		val int
	}{
		{"http_port", c.HTTPPort},
		{"nodes_per_job", c.NodesPerJob},
		{"cores_per_node", c.CoresPerNode},
		{"number_timesteps", c.NumberTimesteps},
		{"frame_height", c.FrameHeight},
		{"avatar_pool_size", c.AvatarPoolSize},
		{"cache_size", c.CacheSize},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("%s must be positive (env: %s)", p.key, envBindings[p.key])
		}
	}
	if c.JobStepCount < 0 {
		return fmt.Errorf("jobstep_count must not be negative (env: JOBSTEP_COUNT)")
	}
	if c.LeaderboardSize < 0 {
		return fmt.Errorf("leaderboard_size must not be negative (env: LEADERBOARD_SIZE)")
	}
	if c.ScoreFile == "" || c.ScoreFile == store.ScoreFile {
		return fmt.Errorf("score_file must be set and differ from %s (env: SCORE_FILE)", store.ScoreFile)
	}
	if c.SubmitRateLimit <= 0 {
		return fmt.Errorf("submit_rate_limit must be positive (env: SUBMIT_RATE_LIMIT)")
	}
	return nil
}

func required(key string) error {
	return fmt.Errorf("%s is required (env: %s)", key, envBindings[key])
}
