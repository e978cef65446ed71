/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPPort != 8080 {
		t.Errorf("Expected default http_port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.RaftPort != 8081 {
		t.Errorf("Expected default raft_port 8081, got %d", cfg.RaftPort)
	}
	if cfg.ElectionTimeoutMinMs != 150 {
		t.Errorf("Expected default election_timeout_min_ms 150, got %d", cfg.ElectionTimeoutMinMs)
	}
	if cfg.ElectionTimeoutMaxMs != 300 {
		t.Errorf("Expected default election_timeout_max_ms 300, got %d", cfg.ElectionTimeoutMaxMs)
	}
	if cfg.HeartbeatIntervalMs != 50 {
		t.Errorf("Expected default heartbeat_interval_ms 50, got %d", cfg.HeartbeatIntervalMs)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != false {
		t.Errorf("Expected default log_json false, got %v", cfg.LogJSON)
	}
	if cfg.WireCompression != "none" {
		t.Errorf("Expected default wire_compression 'none', got '%s'", cfg.WireCompression)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() should validate, got: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			cfg:     DefaultConfig(),
			wantErr: false,
		},
		{
			name: "valid with peers",
			cfg: &Config{
				HTTPPort: 8080, RaftPort: 8081, Peers: []string{"n1:8081", "n2:8081"},
				ElectionTimeoutMinMs: 150, ElectionTimeoutMaxMs: 300, HeartbeatIntervalMs: 50,
				DataDir: "./data", LogLevel: "info",
			},
			wantErr: false,
		},
		{
			name: "invalid http_port - zero",
			cfg: &Config{
				HTTPPort: 0, RaftPort: 8081,
				ElectionTimeoutMinMs: 150, ElectionTimeoutMaxMs: 300, HeartbeatIntervalMs: 50,
				DataDir: "./data", LogLevel: "info",
			},
			wantErr: true,
		},
		{
			name: "invalid http_port - too high",
			cfg: &Config{
				HTTPPort: 70000, RaftPort: 8081,
				ElectionTimeoutMinMs: 150, ElectionTimeoutMaxMs: 300, HeartbeatIntervalMs: 50,
				DataDir: "./data", LogLevel: "info",
			},
			wantErr: true,
		},
		{
			name: "port conflict",
			cfg: &Config{
				HTTPPort: 8080, RaftPort: 8080,
				ElectionTimeoutMinMs: 150, ElectionTimeoutMaxMs: 300, HeartbeatIntervalMs: 50,
				DataDir: "./data", LogLevel: "info",
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: &Config{
				HTTPPort: 8080, RaftPort: 8081,
				ElectionTimeoutMinMs: 150, ElectionTimeoutMaxMs: 300, HeartbeatIntervalMs: 50,
				DataDir: "./data", LogLevel: "invalid",
			},
			wantErr: true,
		},
		{
			name: "invalid wire_compression",
			cfg: &Config{
				HTTPPort: 8080, RaftPort: 8081,
				ElectionTimeoutMinMs: 150, ElectionTimeoutMaxMs: 300, HeartbeatIntervalMs: 50,
				DataDir: "./data", LogLevel: "info", WireCompression: "bogus",
			},
			wantErr: true,
		},
		{
			name: "election min >= max",
			cfg: &Config{
				HTTPPort: 8080, RaftPort: 8081,
				ElectionTimeoutMinMs: 300, ElectionTimeoutMaxMs: 300, HeartbeatIntervalMs: 50,
				DataDir: "./data", LogLevel: "info",
			},
			wantErr: true,
		},
		{
			name: "heartbeat not less than election min",
			cfg: &Config{
				HTTPPort: 8080, RaftPort: 8081,
				ElectionTimeoutMinMs: 150, ElectionTimeoutMaxMs: 300, HeartbeatIntervalMs: 150,
				DataDir: "./data", LogLevel: "info",
			},
			wantErr: true,
		},
		{
			name: "empty data_dir",
			cfg: &Config{
				HTTPPort: 8080, RaftPort: 8081,
				ElectionTimeoutMinMs: 150, ElectionTimeoutMaxMs: 300, HeartbeatIntervalMs: 50,
				DataDir: "", LogLevel: "info",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chatraft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `# Test configuration
node_id = "n1"
http_port = 9000
raft_port = 9001
peers = "n2:9001,n3:9001"
log_level = "debug"
log_json = true
wire_compression = "snappy"
`

	configPath := filepath.Join(tmpDir, "chatraft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()

	if cfg.NodeID != "n1" {
		t.Errorf("Expected node_id 'n1', got '%s'", cfg.NodeID)
	}
	if cfg.HTTPPort != 9000 {
		t.Errorf("Expected http_port 9000, got %d", cfg.HTTPPort)
	}
	if cfg.RaftPort != 9001 {
		t.Errorf("Expected raft_port 9001, got %d", cfg.RaftPort)
	}
	if len(cfg.Peers) != 2 || cfg.Peers[0] != "n2:9001" {
		t.Errorf("Expected peers [n2:9001 n3:9001], got %v", cfg.Peers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true, got %v", cfg.LogJSON)
	}
	if cfg.WireCompression != "snappy" {
		t.Errorf("Expected wire_compression 'snappy', got '%s'", cfg.WireCompression)
	}
	if cfg.ConfigFile != configPath {
		t.Errorf("Expected ConfigFile '%s', got '%s'", configPath, cfg.ConfigFile)
	}
}

func TestLoadFromEnv(t *testing.T) {
	origHTTPPort := os.Getenv(EnvHTTPPort)
	origNodeID := os.Getenv(EnvNodeID)
	origLogLevel := os.Getenv(EnvLogLevel)
	origLogJSON := os.Getenv(EnvLogJSON)
	origAdminPass := os.Getenv(EnvAdminPassword)

	defer func() {
		os.Setenv(EnvHTTPPort, origHTTPPort)
		os.Setenv(EnvNodeID, origNodeID)
		os.Setenv(EnvLogLevel, origLogLevel)
		os.Setenv(EnvLogJSON, origLogJSON)
		os.Setenv(EnvAdminPassword, origAdminPass)
	}()

	os.Setenv(EnvHTTPPort, "7777")
	os.Setenv(EnvNodeID, "n2")
	os.Setenv(EnvLogLevel, "debug")
	os.Setenv(EnvLogJSON, "true")
	os.Setenv(EnvAdminPassword, "testpassword")

	mgr := NewManager()
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.HTTPPort != 7777 {
		t.Errorf("Expected http_port 7777 from env, got %d", cfg.HTTPPort)
	}
	if cfg.NodeID != "n2" {
		t.Errorf("Expected node_id 'n2' from env, got '%s'", cfg.NodeID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug' from env, got '%s'", cfg.LogLevel)
	}
	if cfg.LogJSON != true {
		t.Errorf("Expected log_json true from env, got %v", cfg.LogJSON)
	}
	if cfg.AdminPassword != "testpassword" {
		t.Errorf("Expected admin_password 'testpassword' from env, got '%s'", cfg.AdminPassword)
	}
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chatraft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `http_port = 9000
data_dir = "./data"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "chatraft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	origHTTPPort := os.Getenv(EnvHTTPPort)
	defer os.Setenv(EnvHTTPPort, origHTTPPort)
	os.Setenv(EnvHTTPPort, "7777")

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	mgr.LoadFromEnv()

	cfg := mgr.Get()

	if cfg.HTTPPort != 7777 {
		t.Errorf("Expected http_port 7777 (env override), got %d", cfg.HTTPPort)
	}
}

func TestToTOML(t *testing.T) {
	cfg := &Config{
		NodeID: "n1", HTTPPort: 8080, RaftPort: 8081,
		Peers: []string{"n2:8081"}, DataDir: "/var/lib/chatraft",
		LogLevel: "info", LogJSON: false, WireCompression: "none",
		ElectionTimeoutMinMs: 150, ElectionTimeoutMaxMs: 300, HeartbeatIntervalMs: 50,
	}

	toml := cfg.ToTOML()

	if !strings.Contains(toml, `node_id = "n1"`) {
		t.Error("TOML output missing node_id")
	}
	if !strings.Contains(toml, "http_port = 8080") {
		t.Error("TOML output missing http_port")
	}
	if !strings.Contains(toml, "raft_port = 8081") {
		t.Error("TOML output missing raft_port")
	}
	if !strings.Contains(toml, `data_dir = "/var/lib/chatraft"`) {
		t.Error("TOML output missing data_dir")
	}
}

func TestSaveToFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chatraft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.HTTPPort = 7777
	cfg.NodeID = "n3"

	configPath := filepath.Join(tmpDir, "subdir", "chatraft.conf")
	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	loaded := mgr.Get()
	if loaded.HTTPPort != 7777 {
		t.Errorf("Expected http_port 7777, got %d", loaded.HTTPPort)
	}
	if loaded.NodeID != "n3" {
		t.Errorf("Expected node_id 'n3', got '%s'", loaded.NodeID)
	}
}

func TestReload(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "chatraft_config_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configContent := `http_port = 9000
data_dir = "./data"
log_level = "info"
`
	configPath := filepath.Join(tmpDir, "chatraft.conf")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	mgr := NewManager()
	if err := mgr.LoadFromFile(configPath); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.HTTPPort != 9000 {
		t.Errorf("Expected initial http_port 9000, got %d", cfg.HTTPPort)
	}

	reloadCalled := false
	mgr.OnReload(func(c *Config) {
		reloadCalled = true
	})

	newContent := `http_port = 8000
data_dir = "./data"
log_level = "debug"
`
	if err := os.WriteFile(configPath, []byte(newContent), 0644); err != nil {
		t.Fatalf("Failed to update config file: %v", err)
	}

	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg = mgr.Get()
	if cfg.HTTPPort != 8000 {
		t.Errorf("Expected reloaded http_port 8000, got %d", cfg.HTTPPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected reloaded log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if !reloadCalled {
		t.Error("Reload callback was not called")
	}
}

func TestGlobalManager(t *testing.T) {
	mgr := Global()
	if mgr == nil {
		t.Error("Global() returned nil")
	}

	mgr2 := Global()
	if mgr != mgr2 {
		t.Error("Global() returned different instances")
	}
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	str := cfg.String()

	if !strings.Contains(str, "HTTPPort:") {
		t.Error("String() missing HTTPPort")
	}
	if !strings.Contains(str, "NodeID:") {
		t.Error("String() missing NodeID")
	}
}
