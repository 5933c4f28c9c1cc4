package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// AdminFile is the YAML document under CONFIG_DIR holding the bootstrap
// admin token and the administrators allow-list checked by the auth
// middleware. It is written once at startup and read-only afterwards.
type AdminFile struct {
	AdminJWT       string   `yaml:"admin_jwt,omitempty"`
	Administrators []string `yaml:"administrators"`

	mu   sync.RWMutex
	path string
}

const adminFileName = "admin.yaml"

func LoadAdminFile(configDir string) (*AdminFile, error) {
	path := filepath.Join(configDir, adminFileName)
	af := &AdminFile{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return af, nil
		}
		return nil, fmt.Errorf("read admin file: %w", err)
	}
	if err := yaml.Unmarshal(raw, af); err != nil {
		return nil, fmt.Errorf("parse admin file: %w", err)
	}
	return af, nil
}

func (a *AdminFile) Save() error {
	a.mu.RLock()
	doc := struct {
		AdminJWT       string   `yaml:"admin_jwt,omitempty"`
		Administrators []string `yaml:"administrators"`
	}{AdminJWT: a.AdminJWT, Administrators: a.Administrators}
	a.mu.RUnlock()

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal admin file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(a.path, raw, 0o600)
}

func (a *AdminFile) IsAdministrator(email string) bool {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, admin := range a.Administrators {
		if strings.TrimSpace(strings.ToLower(admin)) == email {
			return true
		}
	}
	return false
}

func (a *AdminFile) AddAdministrator(email string) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, admin := range a.Administrators {
		if strings.TrimSpace(strings.ToLower(admin)) == email {
			return
		}
	}
	a.Administrators = append(a.Administrators, email)
}

func (a *AdminFile) SetAdminJWT(token string) {
	a.mu.Lock()
	a.AdminJWT = token
	a.mu.Unlock()
}

func (a *AdminFile) GetAdminJWT() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.AdminJWT
}
