package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ordersigner/internal/daemon"
	"github.com/danmuck/ordersigner/internal/signer"
	"github.com/danmuck/ordersigner/internal/signer/ethsign"
	"github.com/danmuck/ordersigner/internal/transport"
	"gopkg.in/yaml.v3"
)

// Gateway backends selectable with the signer key.
const (
	signerEth    = "eth"
	signerStatic = "static"
)

type runtimeConfig struct {
	Service         daemon.ServiceConfig
	Signer          string
	StaticSignature string
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		Service: daemon.DefaultServiceConfig(),
		Signer:  signerEth,
	}
}

type fileTLS struct {
	Enabled            bool   `toml:"enabled" yaml:"enabled"`
	Mutual             bool   `toml:"mutual" yaml:"mutual"`
	CertFile           string `toml:"cert_file" yaml:"cert_file"`
	KeyFile            string `toml:"key_file" yaml:"key_file"`
	CAFile             string `toml:"ca_file" yaml:"ca_file"`
	ServerName         string `toml:"server_name" yaml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

type fileConfig struct {
	Interface       string  `toml:"interface" yaml:"interface"`
	MetricsAddr     string  `toml:"metrics_addr" yaml:"metrics_addr"`
	MaxFrameBytes   int     `toml:"max_frame_bytes" yaml:"max_frame_bytes"`
	RateLimit       float64 `toml:"rate_limit" yaml:"rate_limit"`
	RateBurst       int     `toml:"rate_burst" yaml:"rate_burst"`
	ReadIdleTimeout string  `toml:"read_idle_timeout" yaml:"read_idle_timeout"`
	ShutdownGrace   string  `toml:"shutdown_grace" yaml:"shutdown_grace"`
	Signer          string  `toml:"signer" yaml:"signer"`
	StaticSignature string  `toml:"static_signature" yaml:"static_signature"`
	SecurityMode    string  `toml:"security_mode" yaml:"security_mode"`
	TLS             fileTLS `toml:"tls" yaml:"tls"`
}

// definedFunc reports whether a dotted key path was present in the file.
type definedFunc func(key ...string) bool

func loadRuntimeConfig(path string) (runtimeConfig, error) {
	var (
		raw     fileConfig
		defined definedFunc
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defined, err = decodeYAML(path, &raw)
	default:
		defined, err = decodeTOML(path, &raw)
	}
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load ordersignerd config: %w", err)
	}
	return applyFileConfig(defaultRuntimeConfig(), raw, defined)
}

func decodeTOML(path string, raw *fileConfig) (definedFunc, error) {
	meta, err := toml.DecodeFile(path, raw)
	if err != nil {
		return nil, err
	}
	return meta.IsDefined, nil
}

func decodeYAML(path string, raw *fileConfig) (definedFunc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return func(...string) bool { return false }, nil
	}
	root := doc.Content[0]
	if err := root.Decode(raw); err != nil {
		return nil, err
	}
	return func(key ...string) bool {
		node := root
		for _, k := range key {
			node = yamlChild(node, k)
			if node == nil {
				return false
			}
		}
		return true
	}, nil
}

func yamlChild(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func applyFileConfig(cfg runtimeConfig, raw fileConfig, defined definedFunc) (runtimeConfig, error) {
	svc := &cfg.Service

	if defined("interface") {
		svc.Interface = strings.TrimSpace(raw.Interface)
	}
	if defined("metrics_addr") {
		svc.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if defined("max_frame_bytes") {
		if raw.MaxFrameBytes <= 0 {
			return runtimeConfig{}, fmt.Errorf("max_frame_bytes must be positive, got %d", raw.MaxFrameBytes)
		}
		svc.Limits.MaxFrameBytes = raw.MaxFrameBytes
	}
	if defined("rate_limit") {
		svc.RateLimit = raw.RateLimit
	}
	if defined("rate_burst") {
		svc.RateBurst = raw.RateBurst
	}
	if defined("read_idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadIdleTimeout))
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("parse read_idle_timeout: %w", err)
		}
		svc.ReadIdleTimeout = d
	}
	if defined("shutdown_grace") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownGrace))
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("parse shutdown_grace: %w", err)
		}
		svc.ShutdownGrace = d
	}
	if defined("signer") {
		cfg.Signer = strings.ToLower(strings.TrimSpace(raw.Signer))
	}
	if defined("static_signature") {
		cfg.StaticSignature = strings.TrimSpace(raw.StaticSignature)
	}
	if defined("security_mode") {
		svc.Transport.SecurityMode = transport.NormalizeSecurityMode(transport.SecurityMode(strings.TrimSpace(raw.SecurityMode)))
	}

	tls := &svc.Transport.TLS
	if defined("tls", "enabled") {
		tls.Enabled = raw.TLS.Enabled
	}
	if defined("tls", "mutual") {
		tls.Mutual = raw.TLS.Mutual
	}
	if defined("tls", "cert_file") {
		tls.CertFile = strings.TrimSpace(raw.TLS.CertFile)
	}
	if defined("tls", "key_file") {
		tls.KeyFile = strings.TrimSpace(raw.TLS.KeyFile)
	}
	if defined("tls", "ca_file") {
		tls.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if defined("tls", "server_name") {
		tls.ServerName = strings.TrimSpace(raw.TLS.ServerName)
	}
	if defined("tls", "insecure_skip_verify") {
		tls.InsecureSkipVerify = raw.TLS.InsecureSkipVerify
	}

	return cfg, nil
}

// buildGateway returns the signer backend named by cfg.Signer.
func buildGateway(cfg runtimeConfig) (signer.Gateway, error) {
	switch cfg.Signer {
	case "", signerEth:
		return ethsign.New(), nil
	case signerStatic:
		if cfg.StaticSignature == "" {
			return nil, fmt.Errorf("signer %q requires static_signature", signerStatic)
		}
		return signer.Static{Signature: cfg.StaticSignature}, nil
	default:
		return nil, fmt.Errorf("unknown signer %q (want %q or %q)", cfg.Signer, signerEth, signerStatic)
	}
}
