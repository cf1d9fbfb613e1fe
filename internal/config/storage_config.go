package config

import "github.com/knadh/koanf/v2"

type StorageConfig interface {
	GetStorageDir() string
	GetEncryptionKey() string
}

type Storage struct {
	k *koanf.Koanf
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageDir() string {
	return s.k.String("storage.dir")
}

// GetEncryptionKey returns the hex encoded 32 byte key for the session record, empty for plaintext
func (s Storage) GetEncryptionKey() string {
	return s.k.String("storage.encryption_key")
}
