package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot pins the resolved configuration of one run. Secrets are hashed,
// never stored.
type Snapshot struct {
	Version     string    `json:"version"`
	ConfigHash  string    `json:"config_hash"`
	SecretsHash string    `json:"secrets_hash"`
	Timestamp   time.Time `json:"timestamp"`
	Config      Config    `json:"config"`
}

// Hash is the sha256 of the configuration without secrets.
func (c Config) Hash() string {
	b, _ := json.Marshal(c)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

func (c Config) secretsHash() string {
	b, _ := json.Marshal(map[string]string{"clickhouse.password": c.ClickHouse.Password})
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

// Snapshot records c with its hashes at now.
func (c Config) Snapshot(version string, now time.Time) Snapshot {
	return Snapshot{
		Version:     version,
		ConfigHash:  c.Hash(),
		SecretsHash: c.secretsHash(),
		Timestamp:   now.UTC(),
		Config:      c,
	}
}
