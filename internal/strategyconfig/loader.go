package strategyconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/wonny/ashare-rotation/internal/backtest"
)

const dateLayout = "2006-01-02"

// Load reads YAML file and returns Config with raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*Config, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return cfg, data, nil
}

// Lookup loads <dir>/<name>.yaml, falling back to the built-in preset when no file exists
func Lookup(dir, name string) (*Config, []byte, error) {
	if dir != "" {
		cfg, data, err := Load(filepath.Join(dir, name+".yaml"))
		if !errors.Is(err, fs.ErrNotExist) {
			return cfg, data, err
		}
	}

	cfg, err := Preset(name)
	if err != nil {
		return nil, nil, err
	}
	data, err := Marshal(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, data, nil
}

// Parse decodes YAML on top of the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode strategy: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Hash generates SHA256 hash from Config (canonical JSON)
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(cfg *Config) (string, error) {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// NewDecisionSnapshot creates a snapshot for audit
func NewDecisionSnapshot(cfg *Config, yamlData []byte, dataSnapshotID string) (*DecisionSnapshot, error) {
	hash, err := Hash(cfg)
	if err != nil {
		return nil, err
	}

	return &DecisionSnapshot{
		ConfigHash:     hash,
		ConfigYAML:     string(yamlData),
		StrategyID:     cfg.Meta.StrategyID,
		DataSnapshotID: dataSnapshotID,
		CreatedAt:      time.Now(),
	}, nil
}

// ToBacktest converts a validated config into engine configuration
func ToBacktest(cfg *Config) (backtest.Config, error) {
	start, err := cfg.Backtest.Start()
	if err != nil {
		return backtest.Config{}, ValidationError{"backtest.start_date", err.Error()}
	}
	end, err := cfg.Backtest.End()
	if err != nil {
		return backtest.Config{}, ValidationError{"backtest.end_date", err.Error()}
	}

	return backtest.Config{
		Strategy:        cfg.Meta.StrategyID,
		StartDate:       start,
		EndDate:         end,
		InitialCapital:  cfg.Backtest.InitialCapital,
		TransactionCost: cfg.Backtest.TransactionCost,
		RiskFreeRate:    cfg.Backtest.RiskFreeRate,
		Universe:        cfg.Universe,
		Selection:       cfg.Selection,
		Constraints:     cfg.Portfolio,
		Calendar:        cfg.Calendar,
	}, nil
}
