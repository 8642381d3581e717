// internal/utils/crypto_test.go
package utils

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := "sk-abcdefghijklmnop"
	key := "test-secret"

	sealed, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	if sealed == plaintext {
		t.Error("密文不应等于明文")
	}

	opened, err := Decrypt(sealed, key)
	if err != nil {
		t.Fatalf("解密失败: %v", err)
	}
	if opened != plaintext {
		t.Errorf("解密结果错误: %q", opened)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	sealed, err := Encrypt("secret data", "key-one")
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}

	if _, err := Decrypt(sealed, "key-two"); err == nil {
		t.Error("错误的密钥应导致解密失败")
	}
}

func TestDecrypt_InvalidInput(t *testing.T) {
	if _, err := Decrypt("not base64 at all!!!", "key"); err == nil {
		t.Error("非法输入应导致解密失败")
	}
	if _, err := Decrypt("", "key"); err == nil {
		t.Error("空密文应导致解密失败")
	}
}

func TestEncrypt_NoncesDiffer(t *testing.T) {
	first, err := Encrypt("same input", "key")
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	second, err := Encrypt("same input", "key")
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}

	// 随机nonce保证相同输入的密文不同
	if strings.Compare(first, second) == 0 {
		t.Error("两次加密的密文不应相同")
	}
}
