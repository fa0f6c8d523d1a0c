/*
 * Copyright (c) 2024. Shuojiang Liu.
 * Licensed under the MIT License (the "License");
 * you may not use this file except in compliance with the License.
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads the proxy's static configuration: listen address,
// KV engine options, encoding version, storage-Redis endpoint, cache
// sizing, and Sentinel-mode settings.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kvredis/proxy/storage"
)

// EncodingVersion selects whether aggregate writes also mirror to a
// storage Redis (v1) or stay purely native to the KV engine (v0).
type EncodingVersion int

const (
	EncodingV0 EncodingVersion = iota
	EncodingV1
)

// Config is the full process configuration, loaded once at startup.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	DataDirectory  string  `yaml:"data_directory"`
	DataFileSizeMB int64   `yaml:"data_file_size_mb"`
	MergeRatio     float32 `yaml:"merge_ratio"`
	IndexType      string  `yaml:"index_type"`

	EncodingName string          `yaml:"encoding"`
	Encoding     EncodingVersion `yaml:"-"`

	StorageRedisAddr string `yaml:"storage_redis_addr"`

	MetaCacheCapacity int `yaml:"meta_cache_capacity"`
	LRUCapacityPerType int `yaml:"lru_capacity_per_type"`
	ScanBatchSize      int `yaml:"scan_batch_size"`

	HotKeyWindowMS  int64         `yaml:"hot_key_window_ms"`
	HotKeyWindow    time.Duration `yaml:"-"`
	HotKeyThreshold int           `yaml:"hot_key_threshold"`

	Sentinel SentinelConfig `yaml:"sentinel"`
}

// SentinelConfig is the Sentinel-mode config surface from spec.md §6,
// field-for-field: current node identity, optional auth, the pseudo-master
// name, and heartbeat timing.
type SentinelConfig struct {
	Enabled bool `yaml:"enabled"`

	CurrentNodeHost  string `yaml:"current_node_host"`
	CurrentNodePort  int    `yaml:"current_node_port"`
	CurrentNodeCPort int    `yaml:"current_node_cport"`

	SentinelUsername string `yaml:"sentinel_username"`
	SentinelPassword string `yaml:"sentinel_password"`

	MasterName string `yaml:"master_name"`

	HeartbeatIntervalSeconds int64         `yaml:"heartbeat_interval_seconds"`
	HeartbeatInterval        time.Duration `yaml:"-"`
	HeartbeatTimeoutSeconds  int64         `yaml:"heartbeat_timeout_seconds"`
	HeartbeatTimeout         time.Duration `yaml:"-"`

	// NodesProvider names the NodesProvider implementation to use; the
	// static provider (reading Nodes below) is the only one built in.
	NodesProvider string   `yaml:"nodes_provider"`
	Nodes         []string `yaml:"nodes"`
}

// Default returns a Config suitable for running a single standalone proxy
// with no storage Redis and Sentinel mode disabled.
func Default() *Config {
	return &Config{
		ListenAddr:         "127.0.0.1:6380",
		DataDirectory:      os.TempDir(),
		DataFileSizeMB:     256,
		MergeRatio:         0.5,
		IndexType:          "btree",
		EncodingName:       "v0",
		Encoding:           EncodingV0,
		MetaCacheCapacity:  4096,
		LRUCapacityPerType: 8192,
		ScanBatchSize:      256,
		HotKeyWindowMS:     1000,
		HotKeyWindow:       time.Second,
		HotKeyThreshold:    1000,
		Sentinel: SentinelConfig{
			MasterName:               "camellia_sentinel",
			HeartbeatIntervalSeconds: 5,
			HeartbeatInterval:        5 * time.Second,
			HeartbeatTimeoutSeconds:  20,
			HeartbeatTimeout:         20 * time.Second,
			NodesProvider:            "static",
		},
	}
}

// Load reads a YAML config file at path on top of Default, then resolves
// the derived fields (Encoding, durations) from their serialized forms.
// An empty path returns Default unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, err
		}
	}

	cfg.resolve()
	return cfg, nil
}

func (c *Config) resolve() {
	if c.EncodingName == "v1" {
		c.Encoding = EncodingV1
	} else {
		c.Encoding = EncodingV0
	}

	c.HotKeyWindow = time.Duration(c.HotKeyWindowMS) * time.Millisecond
	c.Sentinel.HeartbeatInterval = time.Duration(c.Sentinel.HeartbeatIntervalSeconds) * time.Second
	c.Sentinel.HeartbeatTimeout = time.Duration(c.Sentinel.HeartbeatTimeoutSeconds) * time.Second
}

// StorageOptions adapts this Config into the options the bundled LSM engine
// expects.
func (c *Config) StorageOptions() storage.Options {
	opts := storage.DefaultOptions
	opts.DirectoryPath = c.DataDirectory
	opts.DataFileSize = c.DataFileSizeMB * 1024 * 1024
	opts.DataFileMergeRatio = c.MergeRatio
	opts.IndexType = indexTypeFromName(c.IndexType)
	return opts
}

func indexTypeFromName(name string) storage.IndexerType {
	switch name {
	case "art":
		return storage.ART
	case "bplustree":
		return storage.BPlusTree
	default:
		return storage.BTree
	}
}
