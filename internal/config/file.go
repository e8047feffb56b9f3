package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	fileLock   sync.RWMutex
	fileValues = map[string]string{}
)

// LoadFile reads a flat YAML document of settings, e.g.
//
//	port: 9090
//	backend: supabase
//	supabase_url: https://project.supabase.co
//
// Keys are matched case-insensitively against the env var names.
// Environment variables always take precedence over file values.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("[config LoadFile] read %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("[config LoadFile] parse %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}

	fileLock.Lock()
	fileValues = values
	fileLock.Unlock()
	return nil
}

// ResetFile drops values loaded by LoadFile
func ResetFile() {
	fileLock.Lock()
	fileValues = map[string]string{}
	fileLock.Unlock()
}

func fileValue(key string) (string, bool) {
	fileLock.RLock()
	defer fileLock.RUnlock()
	v, ok := fileValues[strings.ToUpper(key)]
	return v, ok
}
