package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sessionkit/sshsession"
)

// hostFile is the YAML shape of a --config host file.
type hostFile struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	KeyPath    string `yaml:"key_path"`
	KnownHosts string `yaml:"known_hosts"`
	Insecure   bool   `yaml:"insecure"`
}

func loadHostFile(path string) (sshsession.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sshsession.Config{}, fmt.Errorf("read host file: %w", err)
	}

	var hf hostFile
	if err := yaml.Unmarshal(data, &hf); err != nil {
		return sshsession.Config{}, fmt.Errorf("parse host file %s: %w", path, err)
	}

	return sshsession.Config{
		Host:                  hf.Host,
		Port:                  hf.Port,
		User:                  hf.User,
		Password:              hf.Password,
		KeyPath:               hf.KeyPath,
		KnownHostsFile:        hf.KnownHosts,
		InsecureIgnoreHostKey: hf.Insecure,
	}, nil
}
