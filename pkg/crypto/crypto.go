package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"sync"
)

// Cifrado en reposo de las credenciales de integraciones (tokens de
// gateway, api keys). La clave maestra se fija una sola vez en el boot;
// sin clave el paquete opera en modo passthrough y los valores se
// guardan tal cual.

var (
	keyMu     sync.RWMutex
	masterKey []byte
)

// SetEncryptionKey deriva la clave AES-256 a partir de la passphrase de
// configuración. Una passphrase vacía deja el cifrado desactivado.
func SetEncryptionKey(passphrase string) error {
	keyMu.Lock()
	defer keyMu.Unlock()
	if passphrase == "" {
		masterKey = nil
		return nil
	}
	derived := sha256.Sum256([]byte(passphrase))
	masterKey = derived[:]
	return nil
}

func sealer() (cipher.AEAD, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt sella el texto con AES-GCM (nonce antepuesto) y lo devuelve en
// base64. Con el cifrado desactivado retorna el texto sin tocar.
func Encrypt(plainText string) (string, error) {
	keyMu.RLock()
	defer keyMu.RUnlock()
	if len(masterKey) == 0 {
		return plainText, nil
	}

	gcm, err := sealer()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt abre un valor sellado por Encrypt. Valores que no parecen
// cifrados (base64 inválido o demasiado cortos) se devuelven tal cual:
// pueden ser credenciales guardadas antes de configurar la clave.
func Decrypt(cipherText string) (string, error) {
	keyMu.RLock()
	defer keyMu.RUnlock()
	if len(masterKey) == 0 {
		return cipherText, nil
	}

	data, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return cipherText, nil
	}

	gcm, err := sealer()
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return cipherText, nil
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
